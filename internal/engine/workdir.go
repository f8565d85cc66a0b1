package engine

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile lists extra patterns hidden from the working directory description.
const IgnoreFile = ".climbignore"

// Generated code is never listed.
var defaultHiddenPatterns = []string{"*.py", IgnoreFile}

// FileInfo describes one artifact in the session working directory.
type FileInfo struct {
	Name      string
	Size      float64
	SizeUnits string
	Modified  time.Time
}

func (fi FileInfo) String() string {
	return fmt.Sprintf("%s, Size: %3.1f %s, Last Modified: %s",
		fi.Name, fi.Size, fi.SizeUnits, fi.Modified.Format(time.DateTime))
}

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// ConvertSize expresses a byte count in the largest base-1024 unit,
// rounded to two decimals.
func ConvertSize(size int64) (float64, string) {
	if size <= 0 {
		return 0, sizeUnits[0]
	}
	i := int(math.Floor(math.Log(float64(size)) / math.Log(1024)))
	i = min(i, len(sizeUnits)-1)
	v := float64(size) / math.Pow(1024, float64(i))
	return math.Round(v*100) / 100, sizeUnits[i]
}

// DescribeWorkingDirectory lists the files directly inside the working
// directory, skipping subdirectories, generated code and any pattern from
// .climbignore.
func (e *Engine) DescribeWorkingDirectory() ([]FileInfo, error) {
	return DescribeDirectory(e.WorkingDirectoryAbs())
}

// DescribeWorkingDirectoryString renders DescribeWorkingDirectory one file per line.
func (e *Engine) DescribeWorkingDirectoryString() (string, error) {
	infos, err := e.DescribeWorkingDirectory()
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(infos))
	for _, fi := range infos {
		lines = append(lines, fi.String())
	}
	return strings.Join(lines, "\n"), nil
}

// DescribeDirectory is DescribeWorkingDirectory for an arbitrary directory.
func DescribeDirectory(dir string) ([]FileInfo, error) {
	dir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read working directory: %w", err)
	}
	matcher := loadIgnore(dir)

	var infos []FileInfo
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		st, err := os.Stat(path) // follows symlinks
		if err != nil || st.IsDir() {
			continue
		}
		if matcher.MatchesPath(entry.Name()) {
			continue
		}
		size, units := ConvertSize(st.Size())
		infos = append(infos, FileInfo{Name: entry.Name(), Size: size, SizeUnits: units, Modified: st.ModTime()})
	}
	return infos, nil
}

func loadIgnore(dir string) *gitignore.GitIgnore {
	lines := append([]string(nil), defaultHiddenPatterns...)
	if data, err := os.ReadFile(filepath.Join(dir, IgnoreFile)); err == nil {
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	return gitignore.CompileIgnoreLines(lines...)
}
