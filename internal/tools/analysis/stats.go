// Package analysis implements dataset tools that run in-process on CSV files.
package analysis

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
)

const (
	categoricalMaxUnique   = 20
	categoricalMaxFraction = 0.05
	topValues              = 5
)

var missingTokens = map[string]bool{"": true, "na": true, "nan": true, "null": true, "none": true, "n/a": true}

func isMissing(s string) bool { return missingTokens[strings.ToLower(strings.TrimSpace(s))] }

// Column is one CSV column with its parsed numeric view.
type Column struct {
	Name    string
	Raw     []string
	Values  []float64 // non-missing values, only for numeric columns
	Numeric bool
	Integer bool
	Missing int
}

// Frame is a parsed CSV table.
type Frame struct {
	Columns []*Column
	Rows    int
	rows    [][]string
}

// ReadCSV parses r into a Frame. The first record is the header.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read csv: no header row")
	}
	header := records[0]
	f := &Frame{rows: records[1:], Rows: len(records) - 1}
	for i, name := range header {
		col := &Column{Name: name, Numeric: true, Integer: true}
		for _, rec := range f.rows {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			col.Raw = append(col.Raw, v)
			if isMissing(v) {
				col.Missing++
				continue
			}
			if !col.Numeric {
				continue
			}
			x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				col.Numeric, col.Integer, col.Values = false, false, nil
				continue
			}
			if x != math.Trunc(x) {
				col.Integer = false
			}
			col.Values = append(col.Values, x)
		}
		f.Columns = append(f.Columns, col)
	}
	return f, nil
}

// Type returns a pandas-like dtype label.
func (c *Column) Type() string {
	switch {
	case c.Numeric && c.Integer && c.Missing == 0:
		return "int64"
	case c.Numeric:
		return "float64"
	default:
		return "object"
	}
}

// Categorical reports whether c should be summarised by value counts:
// non-numeric columns, and integer columns with few distinct values.
func (c *Column) Categorical(rows int) bool {
	if !c.Numeric {
		return true
	}
	if !c.Integer {
		return false
	}
	u := len(c.Counts())
	return u < categoricalMaxUnique || float64(u) < categoricalMaxFraction*float64(rows)
}

// ValueCount is one distinct value and its frequency.
type ValueCount struct {
	Value string
	Count int
}

// Counts returns non-missing value frequencies, most frequent first.
func (c *Column) Counts() []ValueCount {
	m := map[string]int{}
	for _, v := range c.Raw {
		if !isMissing(v) {
			m[strings.TrimSpace(v)]++
		}
	}
	out := make([]ValueCount, 0, len(m))
	for v, n := range m {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	slices.SortFunc(out, func(a, b ValueCount) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		return strings.Compare(a.Value, b.Value)
	})
	return out
}

// TopWithOther keeps the n most frequent values and folds the rest into "Other".
func TopWithOther(counts []ValueCount, n int) []ValueCount {
	if len(counts) <= n {
		return counts
	}
	out := slices.Clone(counts[:n])
	other := 0
	for _, vc := range counts[n:] {
		other += vc.Count
	}
	return append(out, ValueCount{Value: "Other", Count: other})
}

// Summary holds descriptive statistics for a numeric column.
type Summary struct {
	Count    int
	Mean     float64
	Std      float64
	Min      float64
	Q1       float64
	Median   float64
	Q3       float64
	Max      float64
	Skew     float64
	Kurtosis float64
}

// Describe computes count, mean, sample std, quartiles (linear
// interpolation), bias-corrected skewness and excess kurtosis.
func Describe(values []float64) Summary {
	n := len(values)
	s := Summary{Count: n}
	nan := math.NaN()
	if n == 0 {
		return Summary{Mean: nan, Std: nan, Min: nan, Q1: nan, Median: nan, Q3: nan, Max: nan, Skew: nan, Kurtosis: nan}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	s.Min, s.Max = sorted[0], sorted[n-1]
	s.Q1, s.Median, s.Q3 = quantile(sorted, 0.25), quantile(sorted, 0.5), quantile(sorted, 0.75)

	for _, v := range values {
		s.Mean += v
	}
	s.Mean /= float64(n)

	var m2, m3, m4 float64
	for _, v := range values {
		d := v - s.Mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	fn := float64(n)
	s.Std, s.Skew, s.Kurtosis = nan, nan, nan
	if n > 1 {
		s.Std = math.Sqrt(m2 / (fn - 1))
	}
	m2, m3, m4 = m2/fn, m3/fn, m4/fn
	if m2 == 0 {
		if n > 2 {
			s.Skew = 0
		}
		if n > 3 {
			s.Kurtosis = 0
		}
		return s
	}
	if n > 2 {
		g1 := m3 / math.Pow(m2, 1.5)
		s.Skew = math.Sqrt(fn*(fn-1)) / (fn - 2) * g1
	}
	if n > 3 {
		g2 := m4/(m2*m2) - 3
		s.Kurtosis = (fn - 1) / ((fn - 2) * (fn - 3)) * ((fn+1)*g2 + 6)
	}
	return s
}

func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Outliers counts values outside the 1.5 IQR fences and returns the fences.
func Outliers(values []float64) (count int, lower, upper float64) {
	if len(values) == 0 {
		return 0, math.NaN(), math.NaN()
	}
	s := Describe(values)
	iqr := s.Q3 - s.Q1
	lower, upper = s.Q1-1.5*iqr, s.Q3+1.5*iqr
	for _, v := range values {
		if v < lower || v > upper {
			count++
		}
	}
	return count, lower, upper
}

// Pair is a correlation between two numeric columns.
type Pair struct {
	A, B string
	R    float64
}

// Correlations returns pairwise Pearson correlations over rows where both
// columns are present, skipping undefined ones.
func (f *Frame) Correlations() []Pair {
	var numeric []*Column
	for _, c := range f.Columns {
		if c.Numeric && len(c.Values) > 0 {
			numeric = append(numeric, c)
		}
	}
	var out []Pair
	for i := range numeric {
		for j := i + 1; j < len(numeric); j++ {
			if r, ok := pearson(numeric[i], numeric[j]); ok {
				out = append(out, Pair{A: numeric[i].Name, B: numeric[j].Name, R: r})
			}
		}
	}
	return out
}

func pearson(a, b *Column) (float64, bool) {
	var xs, ys []float64
	for i := range a.Raw {
		if isMissing(a.Raw[i]) || isMissing(b.Raw[i]) {
			continue
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(a.Raw[i]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(b.Raw[i]), 64)
		if errX != nil || errY != nil {
			continue
		}
		xs, ys = append(xs, x), append(ys, y)
	}
	if len(xs) < 2 {
		return 0, false
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// Duplicates counts rows identical to an earlier row.
func (f *Frame) Duplicates() int {
	seen := make(map[string]bool, len(f.rows))
	dup := 0
	for _, rec := range f.rows {
		k := strings.Join(rec, "\x00")
		if seen[k] {
			dup++
			continue
		}
		seen[k] = true
	}
	return dup
}
