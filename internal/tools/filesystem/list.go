package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/tools/base"
)

const defaultListLimit = 1000

var defaultIgnorePatterns = []string{".git", "__pycache__", "logs", ".ipynb_checkpoints"}

type listResult struct {
	Path      string   `json:"path"`
	Files     []string `json:"files"`
	Recursive bool     `json:"recursive"`
	Truncated bool     `json:"truncated"`
}

func listFilesImpl(fileSys FileSystem, root, path string, recursive bool, maxDepth, limit int, ignorePatterns []string) (string, error) {
	dirPath, err := resolve(root, path)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	matcher := gitignore.CompileIgnoreLines(ignorePatterns...)

	res := listResult{Path: path, Files: []string{}, Recursive: recursive}
	if recursive {
		err := fileSys.WalkDir(dirPath, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil || walkPath == dirPath {
				return nil
			}
			rel, err := filepath.Rel(root, walkPath)
			if err != nil {
				return nil
			}
			if matcher.MatchesPath(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if maxDepth >= 0 {
				fromStart, err := filepath.Rel(dirPath, walkPath)
				if err == nil && strings.Count(fromStart, string(filepath.Separator)) > maxDepth {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			res.Files = append(res.Files, filepath.ToSlash(rel))
			if len(res.Files) >= limit {
				res.Truncated = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	} else {
		entries, err := fileSys.ReadDir(dirPath)
		if err != nil {
			return "", err
		}
		for _, entry := range entries {
			rel := entry.Name()
			if path != "" {
				rel = filepath.Join(path, entry.Name())
			}
			if matcher.MatchesPath(rel) {
				continue
			}
			res.Files = append(res.Files, filepath.ToSlash(rel))
			if len(res.Files) >= limit {
				res.Truncated = true
				break
			}
		}
	}

	out, err := json.Marshal(res)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ListFilesTool lists files in the session working directory.
type ListFilesTool struct {
	base.Tool
	fs FileSystem
}

// NewListFilesTool returns the list_files tool.
func NewListFilesTool() *ListFilesTool {
	return &ListFilesTool{
		Tool: base.New("list_files",
			"Lists files in the working directory. Use this to discover the data files available before analysing them.",
			`{"type":"object","properties":{
			"path":{"type":"string","description":"Optional: subdirectory relative to the working directory (empty for the root)"},
			"recursive":{"type":"boolean","description":"If true, list files recursively. Default: false"},
			"max_depth":{"type":"integer","description":"Maximum depth for recursive listing. Default: -1 (unlimited)"},
			"limit":{"type":"integer","description":"Maximum number of files to return. Default: 1000"},
			"ignore_patterns":{"type":"array","items":{"type":"string"},"description":"gitignore-style patterns to skip"}
		},"required":[]}`),
		fs: NewOSFileSystem(),
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, run engine.ToolRun) iter.Seq[engine.ToolEvent] {
	return t.Once(ctx, func(context.Context) (*engine.ToolResult, error) {
		patterns := base.Strings(run.Args, "ignore_patterns")
		if len(patterns) == 0 {
			patterns = defaultIgnorePatterns
		}
		out, err := listFilesImpl(t.fs, run.WorkingDirectory,
			base.String(run.Args, "path", ""),
			base.Bool(run.Args, "recursive", false),
			base.Int(run.Args, "max_depth", -1),
			base.Int(run.Args, "limit", defaultListLimit),
			patterns)
		if err != nil {
			return nil, fmt.Errorf("list_files: %w", err)
		}
		return &engine.ToolResult{Content: out, Success: true}, nil
	})
}
