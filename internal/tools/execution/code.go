// Package execution runs code written by the assistant through a sandbox.Runner.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/sandbox"
	"github.com/DrShushen/climb/internal/session"
	"github.com/DrShushen/climb/internal/tools/base"
)

const defaultCondaEnv = "climb"

var figureExts = []string{".png", ".jpg", ".jpeg", ".svg"}

// Options configures how generated code is launched.
type Options struct {
	// CondaPath, when set, runs code via `conda run -n <CondaEnv> python`.
	CondaPath string
	CondaEnv  string
	// Python is the interpreter used without conda. Default: python3.
	Python  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

type codeResult struct {
	File            string   `json:"file"`
	ExitCode        int      `json:"exit_code"`
	Stdout          string   `json:"stdout"`
	Stderr          string   `json:"stderr"`
	StdoutTruncated bool     `json:"stdout_truncated,omitempty"`
	StderrTruncated bool     `json:"stderr_truncated,omitempty"`
	TimedOut        bool     `json:"timed_out,omitempty"`
	Status          string   `json:"status"`
	Figures         []string `json:"figures,omitempty"`
}

// ExecuteCodeTool writes Python code into the working directory and runs it,
// streaming stdout and stderr as they are produced.
type ExecuteCodeTool struct {
	base.Tool
	runner sandbox.Runner
	opts   Options
}

// NewExecuteCodeTool returns the execute_code tool backed by runner.
func NewExecuteCodeTool(runner sandbox.Runner, opts Options) *ExecuteCodeTool {
	if opts.CondaEnv == "" {
		opts.CondaEnv = defaultCondaEnv
	}
	if opts.Python == "" {
		opts.Python = "python3"
	}
	return &ExecuteCodeTool{
		Tool: base.New(engine.ExecuteCodeTool,
			"Executes a Python script in the working directory. Files the script saves there (datasets, figures) persist between runs.",
			`{"type":"object","properties":{
			"code":{"type":"string","description":"Complete Python source to run"}
		},"required":["code"]}`),
		runner: runner,
		opts:   opts,
	}
}

// command builds the process for file, which is relative to the working directory.
func (t *ExecuteCodeTool) command(dir, file string) sandbox.Command {
	cmd := sandbox.Command{Dir: dir, Name: t.opts.Python, Args: []string{file}, Timeout: t.opts.Timeout}
	if t.opts.CondaPath != "" {
		cmd.Name = t.opts.CondaPath
		cmd.Args = []string{"run", "--no-capture-output", "-n", t.opts.CondaEnv, "python", file}
	}
	return cmd
}

type chanWriter struct {
	ctx context.Context
	ch  chan<- string
}

func (w chanWriter) Write(p []byte) (int, error) {
	select {
	case w.ch <- string(p):
		return len(p), nil
	case <-w.ctx.Done():
		return 0, w.ctx.Err()
	}
}

func (t *ExecuteCodeTool) Execute(ctx context.Context, run engine.ToolRun) iter.Seq[engine.ToolEvent] {
	return func(yield func(engine.ToolEvent) bool) {
		ctx, done := t.Begin(ctx)
		defer done()

		code := base.String(run.Args, "code", "")
		id := run.CallID
		if id == "" {
			id = uuid.NewString()
		}
		file := fmt.Sprintf("climb_code_%s.py", sanitizeID(id))
		if err := os.WriteFile(filepath.Join(run.WorkingDirectory, file), []byte(code), 0o644); err != nil {
			yield(engine.ToolEvent{Err: fmt.Errorf("execute_code: write script: %w", err)})
			return
		}

		started := time.Now()
		out := make(chan string, 16)
		type outcome struct {
			res sandbox.Result
			err error
		}
		finished := make(chan outcome, 1)
		cmd := t.command(run.WorkingDirectory, file)
		cmd.Output = chanWriter{ctx: ctx, ch: out}
		t.opts.Logger.Debug().Str("file", file).Str("cmd", cmd.Name).Msg("running generated code")
		go func() {
			res, err := t.runner.Run(ctx, cmd)
			finished <- outcome{res, err}
			close(out)
		}()

		consumer := true
		for chunk := range out {
			if consumer && !yield(engine.ToolEvent{Output: chunk}) {
				consumer = false
				done()
			}
		}
		o := <-finished
		if !consumer {
			return
		}
		if o.err != nil && !o.res.TimedOut {
			if errors.Is(o.err, context.Canceled) {
				yield(engine.ToolEvent{Err: o.err})
				return
			}
			yield(engine.ToolEvent{Err: fmt.Errorf("execute_code: %w", o.err)})
			return
		}

		figures := newFigures(run.WorkingDirectory, started)
		stdout, stdoutTrunc := truncateOutput(o.res.Stdout, defaultOutputLines)
		stderr, stderrTrunc := truncateOutput(o.res.Stderr, defaultOutputLines)
		cr := codeResult{
			File:            file,
			ExitCode:        o.res.Code,
			Stdout:          stdout,
			Stderr:          stderr,
			StdoutTruncated: stdoutTrunc,
			StderrTruncated: stderrTrunc,
			TimedOut:        o.res.TimedOut,
			Status:          "ok",
			Figures:         figures,
		}
		if o.res.Code != 0 || o.res.TimedOut {
			cr.Status = "failed"
		}
		content, err := json.Marshal(cr)
		if err != nil {
			yield(engine.ToolEvent{Err: err})
			return
		}

		report := make([]session.ReportItem, 0, len(figures)+1)
		if o.res.Stdout != "" {
			report = append(report, session.TextItem(o.res.Stdout))
		}
		for _, f := range figures {
			report = append(report, session.FigureItem(filepath.Join(run.WorkingDirectory, f)))
		}
		yield(engine.ToolEvent{Result: &engine.ToolResult{
			Content:    string(content),
			Success:    cr.Status == "ok",
			UserReport: report,
			Logs:       joinLogs(o.res),
		}})
	}
}

func joinLogs(res sandbox.Result) string {
	if res.Stderr == "" {
		return res.Stdout
	}
	if res.Stdout == "" {
		return res.Stderr
	}
	return res.Stdout + "\n" + res.Stderr
}

// newFigures lists image files in dir modified at or after since.
func newFigures(dir string, since time.Time) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(figureExts, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().Before(since.Truncate(time.Second)) {
			continue
		}
		out = append(out, e.Name())
	}
	return out
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}
