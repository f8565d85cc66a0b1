package analysis

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"text/tabwriter"
)

const maxCorrelationPairs = 10

func fmtNum(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.6f", v)
}

// Report renders the descriptive statistics of f as plain text.
func Report(f *Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset Shape: %d rows and %d columns\n", f.Rows, len(f.Columns))

	b.WriteString("Column Names and Types:\n")
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, c := range f.Columns {
		fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Type())
	}
	tw.Flush()

	var numeric, categorical, numericCategorical []*Column
	for _, c := range f.Columns {
		if c.Numeric {
			numeric = append(numeric, c)
		}
		if c.Categorical(f.Rows) {
			categorical = append(categorical, c)
			if c.Numeric {
				numericCategorical = append(numericCategorical, c)
			}
		}
	}

	if len(numeric) > 0 {
		b.WriteString("\nDescriptive Statistics for Numerical Features:\n")
		tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprint(tw, "\t")
		for _, c := range numeric {
			fmt.Fprintf(tw, "%s\t", c.Name)
		}
		fmt.Fprintln(tw)
		summaries := make([]Summary, len(numeric))
		for i, c := range numeric {
			summaries[i] = Describe(c.Values)
		}
		rows := []struct {
			label string
			get   func(Summary) float64
		}{
			{"count", func(s Summary) float64 { return float64(s.Count) }},
			{"mean", func(s Summary) float64 { return s.Mean }},
			{"std", func(s Summary) float64 { return s.Std }},
			{"min", func(s Summary) float64 { return s.Min }},
			{"25%", func(s Summary) float64 { return s.Q1 }},
			{"50%", func(s Summary) float64 { return s.Median }},
			{"75%", func(s Summary) float64 { return s.Q3 }},
			{"max", func(s Summary) float64 { return s.Max }},
			{"skew", func(s Summary) float64 { return s.Skew }},
			{"kurt", func(s Summary) float64 { return s.Kurtosis }},
		}
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t", r.label)
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t", fmtNum(r.get(s)))
			}
			fmt.Fprintln(tw)
		}
		tw.Flush()
	}

	if len(numericCategorical) > 0 {
		names := make([]string, len(numericCategorical))
		for i, c := range numericCategorical {
			names[i] = fmt.Sprintf("'%s'", c.Name)
		}
		fmt.Fprintf(&b, "\nIdentified numeric value columns that should most likely be considered categoricals:\n[%s].\n", strings.Join(names, ", "))
		fmt.Fprintf(&b, "This is done by checking whether the column contains only integers and has a low number of unique values (<%d or <%.0f%% of total examples).\n",
			categoricalMaxUnique, categoricalMaxFraction*100)
	}

	if len(categorical) > 0 {
		b.WriteString("\nDetailed Information on Categorical Variables:\n")
		for _, c := range categorical {
			counts := c.Counts()
			fmt.Fprintf(&b, "%s - Unique Values: %d \nTop %d Values:\n", c.Name, len(counts), topValues)
			tw = tabwriter.NewWriter(&b, 0, 0, 4, ' ', 0)
			for _, vc := range TopWithOther(counts, topValues) {
				fmt.Fprintf(tw, "%s\t%d\n", vc.Value, vc.Count)
			}
			tw.Flush()
			b.WriteString("\n")
		}
	}

	b.WriteString("Missing Values Analysis:\n")
	allMissing, anyMissing := 0, false
	for _, c := range f.Columns {
		if c.Missing > 0 {
			anyMissing = true
			fmt.Fprintf(&b, "%s    %d\n", c.Name, c.Missing)
		}
		if f.Rows > 0 && c.Missing == f.Rows {
			allMissing++
		}
	}
	if !anyMissing {
		b.WriteString("No missing values.\n")
	}
	fmt.Fprintf(&b, "\nCount of columns with all NaN values: %d\n", allMissing)

	if pairs := f.Correlations(); len(pairs) > 0 {
		var pos, neg []Pair
		for _, p := range pairs {
			if p.R >= 0 {
				pos = append(pos, p)
			} else {
				neg = append(neg, p)
			}
		}
		slices.SortStableFunc(pos, func(a, b Pair) int { return cmpFloat(b.R, a.R) })
		slices.SortStableFunc(neg, func(a, b Pair) int { return cmpFloat(a.R, b.R) })
		b.WriteString("Correlation Analysis:\n")
		writePairs(&b, "Most Positively Correlated Features:", pos)
		writePairs(&b, "Most Negatively Correlated Features:", neg)
	}

	if len(numeric) > 0 {
		b.WriteString("\nOutlier Identification for Numerical Features:\n")
		for _, c := range numeric {
			n, lo, hi := Outliers(c.Values)
			fmt.Fprintf(&b, "%s - Outliers Count: %d\n[Lower Bound: %.3g, Upper Bound: %.3g]\n", c.Name, n, lo, hi)
		}
	}

	fmt.Fprintf(&b, "\nDuplicate Records: %d\n", f.Duplicates())
	return b.String()
}

func writePairs(b *strings.Builder, title string, pairs []Pair) {
	if len(pairs) == 0 {
		return
	}
	if len(pairs) > maxCorrelationPairs {
		pairs = pairs[:maxCorrelationPairs]
	}
	fmt.Fprintf(b, "\n%s\n", title)
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "Feature 1\tFeature 2\tCorrelation\t\n")
	for _, p := range pairs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", p.A, p.B, fmtNum(p.R))
	}
	tw.Flush()
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
