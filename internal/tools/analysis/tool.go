package analysis

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/session"
	"github.com/DrShushen/climb/internal/tools/base"
)

// DescriptiveStatisticsTool summarises a CSV dataset in the working directory.
type DescriptiveStatisticsTool struct {
	base.Tool
}

// NewDescriptiveStatisticsTool returns the descriptive_statistics tool.
func NewDescriptiveStatisticsTool() *DescriptiveStatisticsTool {
	return &DescriptiveStatisticsTool{
		Tool: base.New("descriptive_statistics",
			"Produces descriptive statistics for a CSV dataset: column types, numeric summaries, categorical value counts, missing values, correlations, outliers and duplicate rows.",
			`{"type":"object","properties":{
			"data_file_path":{"type":"string","description":"Path of the CSV file relative to the working directory"}
		},"required":["data_file_path"]}`),
	}
}

func (t *DescriptiveStatisticsTool) Execute(ctx context.Context, run engine.ToolRun) iter.Seq[engine.ToolEvent] {
	return func(yield func(engine.ToolEvent) bool) {
		ctx, done := t.Begin(ctx)
		defer done()

		rel := base.String(run.Args, "data_file_path", "")
		path := filepath.Join(run.WorkingDirectory, rel)
		if r, err := filepath.Rel(run.WorkingDirectory, path); err != nil || strings.HasPrefix(r, "..") {
			yield(engine.ToolEvent{Err: fmt.Errorf("descriptive_statistics: %s is outside the working directory", rel)})
			return
		}
		if !yield(engine.ToolEvent{Output: fmt.Sprintf("Loading %s...\n", rel)}) {
			return
		}

		file, err := os.Open(path)
		if err != nil {
			yield(engine.ToolEvent{Err: fmt.Errorf("descriptive_statistics: %w", err)})
			return
		}
		frame, err := ReadCSV(file)
		file.Close()
		if err != nil {
			yield(engine.ToolEvent{Err: fmt.Errorf("descriptive_statistics: %w", err)})
			return
		}
		if ctx.Err() != nil {
			yield(engine.ToolEvent{Err: ctx.Err()})
			return
		}
		if !yield(engine.ToolEvent{Output: fmt.Sprintf("Loaded %d rows and %d columns.\n", frame.Rows, len(frame.Columns))}) {
			return
		}

		report := Report(frame)
		yield(engine.ToolEvent{Result: &engine.ToolResult{
			Content:    report,
			Success:    true,
			UserReport: []session.ReportItem{session.TextItem(report)},
		}})
	}
}
