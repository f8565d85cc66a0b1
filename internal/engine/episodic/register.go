package episodic

import (
	"context"
	"errors"
	"fmt"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/providers"
)

// ErrMissingAPIKey is returned when an engine is created without a key.
var ErrMissingAPIKey = errors.New("missing API key")

var descriptions = map[string]string{
	OpenAIV1:      "Plan-driven research engine using the OpenAI API.",
	AzureOpenAIV1: "Plan-driven research engine using an Azure OpenAI deployment.",
	AnthropicV1:   "Plan-driven research engine using the Anthropic API.",
}

// Register adds the episodic engines to r.
func Register(r *engine.Registry, deps Deps) {
	for _, d := range []struct{ name, provider string }{
		{OpenAIV1, engine.ProviderOpenAI},
		{AzureOpenAIV1, engine.ProviderAzureOpenAI},
		{AnthropicV1, engine.ProviderAnthropic},
	} {
		r.Register(engine.Descriptor{
			Name:        d.name,
			Description: descriptions[d.name],
			Provider:    d.provider,
			Parameters:  func() []engine.Parameter { return parameters(d.provider, deps) },
			New: func(_ context.Context, creds engine.Credentials) (engine.Variant, error) {
				client, err := newClient(d.provider, creds, deps)
				if err != nil {
					return nil, err
				}
				return NewVariant(d.name, d.provider, client, deps), nil
			},
		})
	}
}

func newClient(provider string, creds engine.Credentials, deps Deps) (engine.LLMClient, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}
	if deps.NewClient != nil {
		return deps.NewClient(provider, creds)
	}
	switch provider {
	case engine.ProviderOpenAI:
		return providers.NewOpenAIClient(creds.APIKey, creds.Endpoint, deps.Logger), nil
	case engine.ProviderAzureOpenAI:
		return providers.NewAzureOpenAIClient(providers.AzureOptions{
			APIKey:     creds.APIKey,
			Endpoint:   creds.Endpoint,
			Deployment: creds.Deployment,
			APIVersion: creds.APIVersion,
		}, deps.Logger), nil
	case engine.ProviderAnthropic:
		return providers.NewAnthropicClient(creds.APIKey, deps.Logger), nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}
