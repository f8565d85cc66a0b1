package prompts

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// PromptRegistry holds the agent prompts, keyed by ID and version.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]map[PromptVersion]*Prompt
}

var (
	defaultRegistry     *PromptRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the registry the coordinator and worker prompts
// are registered in.
func DefaultRegistry() *PromptRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewPromptRegistry()
	})
	return defaultRegistry
}

func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]map[PromptVersion]*Prompt)}
}

// Register adds p, replacing any prompt with the same ID and version.
func (r *PromptRegistry) Register(p *Prompt) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prompts[p.ID] == nil {
		r.prompts[p.ID] = make(map[PromptVersion]*Prompt)
	}
	r.prompts[p.ID][p.Version] = p
}

func (r *PromptRegistry) Get(id string, version PromptVersion) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt %q is not registered", id)
	}
	p, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("prompt %q has no version %s", id, version)
	}
	return p, nil
}

// GetLatest returns the highest non-deprecated version of a prompt, or the
// highest deprecated one when every version is deprecated. Versions compare
// numerically per dot-separated part, so 10.0.0 is newer than 2.0.0.
func (r *PromptRegistry) GetLatest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.prompts[id]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("prompt %q is not registered", id)
	}

	var latest *Prompt
	for _, p := range versions {
		switch {
		case latest == nil:
			latest = p
		case latest.Deprecated != p.Deprecated:
			if latest.Deprecated {
				latest = p
			}
		case p.Version.Compare(latest.Version) > 0:
			latest = p
		}
	}
	return latest, nil
}

// Content returns the text of the latest version of a prompt.
func (r *PromptRegistry) Content(id string) (string, error) {
	p, err := r.GetLatest(id)
	if err != nil {
		return "", err
	}
	return p.Content, nil
}

// Compare orders versions by their numeric parts, returning -1, 0 or 1.
// A missing part counts as 0. A part that is not a number sorts below
// any number and falls back to string order among non-numbers.
func (v PromptVersion) Compare(other PromptVersion) int {
	a := strings.Split(strings.TrimPrefix(string(v), "v"), ".")
	b := strings.Split(strings.TrimPrefix(string(other), "v"), ".")
	for i := 0; i < max(len(a), len(b)); i++ {
		if c := comparePart(part(a, i), part(b, i)); c != 0 {
			return c
		}
	}
	return 0
}

func part(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return "0"
}

func comparePart(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	}
	return strings.Compare(a, b)
}
