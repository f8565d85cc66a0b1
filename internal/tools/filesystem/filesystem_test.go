package filesystem

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/DrShushen/climb/internal/engine"
)

// MockFileSystem is a mock implementation of the FileSystem interface.
type MockFileSystem struct {
	ReadFileFunc func(name string) ([]byte, error)
	ReadDirFunc  func(name string) ([]os.DirEntry, error)
	WalkDirFunc  func(root string, fn fs.WalkDirFunc) error
}

func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(name)
	}
	return nil, os.ErrNotExist
}

func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	if m.ReadDirFunc != nil {
		return m.ReadDirFunc(name)
	}
	return nil, nil
}

func (m *MockFileSystem) WalkDir(root string, fn fs.WalkDirFunc) error {
	if m.WalkDirFunc != nil {
		return m.WalkDirFunc(root, fn)
	}
	return nil
}

type mockDirEntry struct {
	name  string
	isDir bool
}

func (m mockDirEntry) Name() string               { return m.name }
func (m mockDirEntry) IsDir() bool                { return m.isDir }
func (m mockDirEntry) Type() os.FileMode          { return 0 }
func (m mockDirEntry) Info() (os.FileInfo, error) { return nil, nil }

func TestReadFileHeadImpl(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		n           int
		mockContent string
		mockErr     error
		wantLines   []string
		wantTotal   int
		wantTrunc   bool
		wantErr     bool
	}{
		{
			name:        "Short file",
			path:        "data.csv",
			n:           5,
			mockContent: "a,b\n1,2\n",
			wantLines:   []string{"a,b", "1,2"},
			wantTotal:   2,
		},
		{
			name:        "Truncated with CRLF",
			path:        "data.csv",
			n:           2,
			mockContent: "a,b\r\n1,2\r\n3,4\r\n",
			wantLines:   []string{"a,b", "1,2"},
			wantTotal:   3,
			wantTrunc:   true,
		},
		{
			name:      "Empty file",
			path:      "empty.txt",
			wantLines: []string{},
		},
		{
			name:    "Missing file",
			path:    "missing.txt",
			mockErr: os.ErrNotExist,
			wantErr: true,
		},
		{
			name:    "Path traversal attempt",
			path:    "../secret.txt",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &MockFileSystem{
				ReadFileFunc: func(name string) ([]byte, error) {
					return []byte(tt.mockContent), tt.mockErr
				},
			}

			out, err := readFileHeadImpl(fs, "/work", tt.path, tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readFileHeadImpl() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			var res headResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !slices.Equal(res.Lines, tt.wantLines) {
				t.Errorf("lines = %q, want %q", res.Lines, tt.wantLines)
			}
			if res.TotalLines != tt.wantTotal || res.Truncated != tt.wantTrunc {
				t.Errorf("total=%d truncated=%v, want %d %v", res.TotalLines, res.Truncated, tt.wantTotal, tt.wantTrunc)
			}
		})
	}
}

func TestListFilesImpl(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		recursive      bool
		maxDepth       int
		limit          int
		ignorePatterns []string
		mockEntries    []os.DirEntry
		mockWalk       func(root string, fn fs.WalkDirFunc) error
		wantFiles      []string
		wantTruncated  bool
	}{
		{
			name:  "List root non-recursive",
			limit: 1000,
			mockEntries: []os.DirEntry{
				mockDirEntry{name: "data.csv"},
				mockDirEntry{name: "figures", isDir: true},
				mockDirEntry{name: "logs", isDir: true},
			},
			ignorePatterns: defaultIgnorePatterns,
			wantFiles:      []string{"data.csv", "figures"},
		},
		{
			name:           "List recursive with ignore",
			recursive:      true,
			maxDepth:       -1,
			limit:          1000,
			ignorePatterns: []string{"*.log"},
			mockWalk: func(root string, fn fs.WalkDirFunc) error {
				fn("/work", mockDirEntry{name: "work", isDir: true}, nil)
				fn("/work/data.csv", mockDirEntry{name: "data.csv"}, nil)
				fn("/work/error.log", mockDirEntry{name: "error.log"}, nil)
				fn("/work/out", mockDirEntry{name: "out", isDir: true}, nil)
				fn("/work/out/model.pkl", mockDirEntry{name: "model.pkl"}, nil)
				return nil
			},
			wantFiles: []string{"data.csv", "out", "out/model.pkl"},
		},
		{
			name:      "List recursive with max depth",
			recursive: true,
			maxDepth:  0,
			limit:     1000,
			mockWalk: func(root string, fn fs.WalkDirFunc) error {
				fn("/work", mockDirEntry{name: "work", isDir: true}, nil)
				fn("/work/data.csv", mockDirEntry{name: "data.csv"}, nil)
				fn("/work/out", mockDirEntry{name: "out", isDir: true}, nil)
				fn("/work/out/model.pkl", mockDirEntry{name: "model.pkl"}, nil)
				return nil
			},
			wantFiles: []string{"data.csv", "out"},
		},
		{
			name:  "Limit truncates",
			limit: 1,
			mockEntries: []os.DirEntry{
				mockDirEntry{name: "a.csv"},
				mockDirEntry{name: "b.csv"},
			},
			wantFiles:     []string{"a.csv"},
			wantTruncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockFS := &MockFileSystem{
				ReadDirFunc: func(name string) ([]os.DirEntry, error) {
					return tt.mockEntries, nil
				},
				WalkDirFunc: tt.mockWalk,
			}

			out, err := listFilesImpl(mockFS, "/work", tt.path, tt.recursive, tt.maxDepth, tt.limit, tt.ignorePatterns)
			if err != nil {
				t.Fatalf("listFilesImpl() error = %v", err)
			}
			var res listResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !slices.Equal(res.Files, tt.wantFiles) {
				t.Errorf("files = %q, want %q", res.Files, tt.wantFiles)
			}
			if res.Truncated != tt.wantTruncated {
				t.Errorf("truncated = %v, want %v", res.Truncated, tt.wantTruncated)
			}
		})
	}
}

func TestListFilesRejectsEscape(t *testing.T) {
	if _, err := listFilesImpl(&MockFileSystem{}, "/work", "../etc", false, -1, 10, nil); err == nil {
		t.Fatal("expected error for path outside the working directory")
	}
}

func TestToolsAgainstWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.csv"), []byte("x,y\n1,2\n3,4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "logs"), 0o755); err != nil {
		t.Fatal(err)
	}

	run := engine.ToolRun{WorkingDirectory: dir, Args: map[string]any{}}
	var listed *engine.ToolResult
	for ev := range NewListFilesTool().Execute(context.Background(), run) {
		if ev.Err != nil {
			t.Fatalf("list_files: %v", ev.Err)
		}
		listed = ev.Result
	}
	if listed == nil || !listed.Success || !strings.Contains(listed.Content, "data.csv") || strings.Contains(listed.Content, "logs") {
		t.Fatalf("unexpected list_files result: %+v", listed)
	}

	run.Args = map[string]any{"path": "data.csv", "n_lines": float64(2)}
	var head *engine.ToolResult
	for ev := range NewReadFileHeadTool().Execute(context.Background(), run) {
		if ev.Err != nil {
			t.Fatalf("read_file_head: %v", ev.Err)
		}
		head = ev.Result
	}
	if head == nil || !strings.Contains(head.Content, `"lines":["x,y","1,2"]`) {
		t.Fatalf("unexpected read_file_head result: %+v", head)
	}
}
