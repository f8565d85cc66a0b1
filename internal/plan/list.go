package plan

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// TemplatesDir is the subdirectory of the plans directory holding the
// read-only default plans.
const TemplatesDir = "defaults"

// Listing names the plan files available to choose from.
type Listing struct {
	PlanFiles     []string
	TemplateFiles []string
}

// Path resolves a listed file name: user plans win over templates.
func (l Listing) Path(plansDir, name string) (string, bool) {
	if slices.Contains(l.PlanFiles, name) {
		return filepath.Join(plansDir, name), true
	}
	if slices.Contains(l.TemplateFiles, name) {
		return filepath.Join(plansDir, TemplatesDir, name), true
	}
	return "", false
}

// All returns user plans followed by templates not shadowed by a user plan.
func (l Listing) All() []string {
	out := slices.Clone(l.PlanFiles)
	for _, t := range l.TemplateFiles {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// List returns the sorted *.json file names in plansDir and its templates
// directory. Missing directories list as empty.
func List(plansDir string) (Listing, error) {
	plans, err := jsonFiles(plansDir)
	if err != nil {
		return Listing{}, err
	}
	templates, err := jsonFiles(filepath.Join(plansDir, TemplatesDir))
	if err != nil {
		return Listing{}, err
	}
	return Listing{PlanFiles: plans, TemplateFiles: templates}, nil
}

func jsonFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, e.Name())
		}
	}
	slices.Sort(out)
	return out, nil
}
