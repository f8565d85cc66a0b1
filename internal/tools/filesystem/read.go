package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/tools/base"
)

const (
	defaultHeadLines = 20
	maxHeadLines     = 200
	maxHeadLineChars = 2000
)

type headResult struct {
	Path       string   `json:"path"`
	Lines      []string `json:"lines"`
	TotalLines int      `json:"total_lines"`
	Truncated  bool     `json:"truncated"`
}

func readFileHeadImpl(fileSys FileSystem, root, path string, n int) (string, error) {
	filePath, err := resolve(root, path)
	if err != nil {
		return "", err
	}
	switch {
	case n <= 0:
		n = defaultHeadLines
	case n > maxHeadLines:
		n = maxHeadLines
	}

	data, err := fileSys.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(data) == 0 {
		lines = nil
	}

	res := headResult{Path: path, Lines: []string{}, TotalLines: len(lines)}
	for i, line := range lines {
		if i == n {
			res.Truncated = true
			break
		}
		line = strings.TrimSuffix(line, "\r")
		if len(line) > maxHeadLineChars {
			line = line[:maxHeadLineChars] + "..."
		}
		res.Lines = append(res.Lines, line)
	}

	out, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ReadFileHeadTool returns the first lines of a file in the working directory.
type ReadFileHeadTool struct {
	base.Tool
	fs FileSystem
}

// NewReadFileHeadTool returns the read_file_head tool.
func NewReadFileHeadTool() *ReadFileHeadTool {
	return &ReadFileHeadTool{
		Tool: base.New("read_file_head",
			"Reads the first lines of a file in the working directory, e.g. the header and a few rows of a CSV dataset.",
			`{"type":"object","properties":{
			"path":{"type":"string","description":"File path relative to the working directory"},
			"n_lines":{"type":"integer","description":"Number of lines to return. Default: 20, maximum: 200"}
		},"required":["path"]}`),
		fs: NewOSFileSystem(),
	}
}

func (t *ReadFileHeadTool) Execute(ctx context.Context, run engine.ToolRun) iter.Seq[engine.ToolEvent] {
	return t.Once(ctx, func(context.Context) (*engine.ToolResult, error) {
		out, err := readFileHeadImpl(t.fs, run.WorkingDirectory,
			base.String(run.Args, "path", ""),
			base.Int(run.Args, "n_lines", defaultHeadLines))
		if err != nil {
			return nil, fmt.Errorf("read_file_head: %w", err)
		}
		return &engine.ToolResult{Content: out, Success: true}, nil
	})
}
