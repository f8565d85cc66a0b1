package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Credentials carry what a variant needs to reach its provider.
type Credentials struct {
	APIKey     string
	Endpoint   string // Azure endpoint or custom base URL
	Deployment string // Azure deployment name
	APIVersion string
}

// VariantFactory builds a Variant for a session.
type VariantFactory func(ctx context.Context, creds Credentials) (Variant, error)

// Provider kinds a descriptor can talk to.
const (
	ProviderOpenAI      = "openai"
	ProviderAzureOpenAI = "azure_openai"
	ProviderAnthropic   = "anthropic"
)

// Descriptor registers one engine implementation.
type Descriptor struct {
	Name        string
	Description string
	Provider    string
	Parameters  func() []Parameter
	New         VariantFactory
}

// IsAzure reports whether the engine talks to Azure OpenAI.
func (d Descriptor) IsAzure() bool {
	return d.Provider == ProviderAzureOpenAI || strings.Contains(d.Name, "azure")
}

// Registry maps engine names to descriptors.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Descriptor)}
}

// Register adds or replaces an engine descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[d.Name] = d
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	r.mu.RLock()
	d, ok := r.engines[name]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, fmt.Errorf("engine.Registry.Lookup(%q): %w", name, ErrUnknownEngine)
	}
	return d, nil
}

// Create instantiates the variant registered under name.
func (r *Registry) Create(ctx context.Context, name string, creds Credentials) (Variant, error) {
	d, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	v, err := d.New(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("engine.Registry.Create(%q): %w", name, err)
	}
	return v, nil
}

// Available returns registered engine names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
