package prompts

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// PromptBuilder helps compose prompts from fragments and variables.
type PromptBuilder struct {
	basePrompt *Prompt
	fragments  []string
	variables  map[string]string
}

// NewPromptBuilder creates a new prompt builder based on a registered prompt.
func NewPromptBuilder(registry *PromptRegistry, id string, version PromptVersion) (*PromptBuilder, error) {
	basePrompt, err := registry.Get(id, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}

	return &PromptBuilder{
		basePrompt: basePrompt,
		fragments:  []string{basePrompt.Content},
		variables:  make(map[string]string),
	}, nil
}

// AddFragment appends a fragment to the prompt. Empty fragments are skipped.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// SetVariables sets several variables at once.
func (b *PromptBuilder) SetVariables(vars map[string]string) *PromptBuilder {
	for k, v := range vars {
		b.variables[k] = v
	}
	return b
}

// Build constructs the final prompt string. Placeholders without a value
// are an error; substituted values are not expanded again.
func (b *PromptBuilder) Build() (string, error) {
	joined := strings.Join(b.fragments, "\n\n")

	var missing []string
	result := placeholder.ReplaceAllStringFunc(joined, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := b.variables[key]
		if !ok {
			if !slices.Contains(missing, key) {
				missing = append(missing, key)
			}
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt %s: no value for %s", b.basePrompt.ID, strings.Join(missing, ", "))
	}
	return result, nil
}

// Render builds the latest version of prompt id with vars substituted.
func (r *PromptRegistry) Render(id string, vars map[string]string) (string, error) {
	p, err := r.GetLatest(id)
	if err != nil {
		return "", err
	}
	b, err := NewPromptBuilder(r, id, p.Version)
	if err != nil {
		return "", err
	}
	return b.SetVariables(vars).Build()
}
