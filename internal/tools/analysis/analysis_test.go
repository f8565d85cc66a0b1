package analysis

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/engine"
)

const sample = `id,score,group,label,empty
1,1.5,1,a,
2,2.5,1,b,
3,3.5,2,a,
4,4.5,2,a,
5,100,3,c,
5,100,3,c,
`

func TestReadCSVInfersTypes(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Columns, 5)
	assert.Equal(t, 6, f.Rows)

	types := map[string]string{}
	for _, c := range f.Columns {
		types[c.Name] = c.Type()
	}
	assert.Equal(t, map[string]string{
		"id": "int64", "score": "float64", "group": "int64", "label": "object", "empty": "float64",
	}, types)

	assert.True(t, f.Columns[2].Categorical(f.Rows))
	assert.False(t, f.Columns[1].Categorical(f.Rows))
	assert.True(t, f.Columns[3].Categorical(f.Rows))
	assert.Equal(t, 6, f.Columns[4].Missing)
	assert.Equal(t, 1, f.Duplicates())
}

func TestDescribe(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i)
	}
	s := Describe(values)
	assert.Equal(t, 1000, s.Count)
	assert.InDelta(t, 499.5, s.Mean, 1e-9)
	assert.InDelta(t, 288.819436, s.Std, 1e-6)
	assert.InDelta(t, 249.75, s.Q1, 1e-9)
	assert.InDelta(t, 499.5, s.Median, 1e-9)
	assert.InDelta(t, 749.25, s.Q3, 1e-9)
	assert.InDelta(t, 0, s.Skew, 1e-9)
	assert.InDelta(t, -1.2, s.Kurtosis, 1e-6)

	empty := Describe(nil)
	assert.Equal(t, 0, empty.Count)
	assert.True(t, math.IsNaN(empty.Mean))
}

func TestTopWithOther(t *testing.T) {
	counts := []ValueCount{{"a", 5}, {"b", 4}, {"c", 3}}
	assert.Equal(t, counts, TopWithOther(counts, 5))
	assert.Equal(t, []ValueCount{{"a", 5}, {"Other", 7}}, TopWithOther(counts, 1))
}

func TestOutliersAndCorrelation(t *testing.T) {
	n, lo, hi := Outliers([]float64{1, 2, 3, 4, 100})
	assert.Equal(t, 1, n)
	assert.InDelta(t, -1, lo, 1e-9)
	assert.InDelta(t, 7, hi, 1e-9)

	f, err := ReadCSV(strings.NewReader("x,y,z\n1,2,3\n2,4,1\n3,6,2\n"))
	require.NoError(t, err)
	pairs := f.Correlations()
	require.Len(t, pairs, 3)
	assert.Equal(t, "x", pairs[0].A)
	assert.Equal(t, "y", pairs[0].B)
	assert.InDelta(t, 1, pairs[0].R, 1e-9)
}

func TestDescriptiveStatisticsTool(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.csv"), []byte(sample), 0o644))

	tool := NewDescriptiveStatisticsTool()
	var outputs []string
	var result *engine.ToolResult
	for ev := range tool.Execute(context.Background(), engine.ToolRun{
		WorkingDirectory: dir,
		Args:             map[string]any{"data_file_path": "data.csv"},
	}) {
		require.NoError(t, ev.Err)
		if ev.Output != "" {
			outputs = append(outputs, ev.Output)
		}
		if ev.Result != nil {
			result = ev.Result
		}
	}

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Len(t, outputs, 2)
	assert.Contains(t, result.Content, "Dataset Shape: 6 rows and 5 columns")
	assert.Contains(t, result.Content, "Duplicate Records: 1")
	assert.Contains(t, result.Content, "Count of columns with all NaN values: 1")
	require.Len(t, result.UserReport, 1)
	assert.Equal(t, result.Content, result.UserReport[0].Content)
}

func TestDescriptiveStatisticsToolErrors(t *testing.T) {
	dir := t.TempDir()
	for _, path := range []string{"missing.csv", "../outside.csv"} {
		var last engine.ToolEvent
		for ev := range NewDescriptiveStatisticsTool().Execute(context.Background(), engine.ToolRun{
			WorkingDirectory: dir,
			Args:             map[string]any{"data_file_path": path},
		}) {
			last = ev
		}
		assert.Error(t, last.Err, path)
	}
}
