package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolve joins rel onto root and rejects paths that escape root.
func resolve(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("no working directory")
	}
	root = filepath.Clean(root)
	full := filepath.Clean(filepath.Join(root, rel))
	r, err := filepath.Rel(root, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside the working directory", rel)
	}
	return full, nil
}
