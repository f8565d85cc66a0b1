// Package factory wires configuration, stores, tools and providers into
// ready-to-run engines.
package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/config"
	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/engine/episodic"
	"github.com/DrShushen/climb/internal/sandbox"
	"github.com/DrShushen/climb/internal/session"
	"github.com/DrShushen/climb/internal/session/sqlitestore"
	"github.com/DrShushen/climb/internal/tools"
)

// Deps returns the episodic engine dependencies for cfg.
func Deps(cfg config.Config, log zerolog.Logger) episodic.Deps {
	return episodic.Deps{PlansDir: cfg.PlansDir, AzureConfigPath: cfg.AzureConfig, Logger: log}
}

// NewRegistry returns a registry holding every built-in engine.
func NewRegistry(cfg config.Config, log zerolog.Logger) *engine.Registry {
	r := engine.NewRegistry()
	episodic.Register(r, Deps(cfg, log))
	return r
}

// OpenStore opens the session store selected by cfg.Store. The closer must
// be closed on shutdown.
func OpenStore(ctx context.Context, cfg config.Config) (session.Store, io.Closer, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data directory: %w", err)
		}
		s, err := sqlitestore.Open(ctx, cfg.StorePath())
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.StoreFile, "":
		return session.NewFileStore(cfg.StorePath()), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Credentials picks the API key (and Azure endpoint) an engine needs.
func Credentials(d engine.Descriptor, params session.Params, cfg config.Config) (engine.Credentials, error) {
	switch {
	case d.IsAzure():
		items, err := config.LoadAzureConfig(cfg.AzureConfig)
		if err != nil {
			return engine.Credentials{}, err
		}
		name, _ := params[episodic.ParamConfigItemName].(string)
		item, err := config.FindAzureConfigItem(items, name)
		if err != nil {
			return engine.Credentials{}, err
		}
		key, err := item.APIKey()
		if err != nil {
			return engine.Credentials{}, err
		}
		return engine.Credentials{
			APIKey:     key,
			Endpoint:   item.Endpoint,
			Deployment: item.DeploymentName,
			APIVersion: item.APIVersion,
		}, nil
	case d.Provider == engine.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return engine.Credentials{}, errors.New("ANTHROPIC_API_KEY is not set")
		}
		return engine.Credentials{APIKey: cfg.AnthropicAPIKey}, nil
	default:
		if cfg.OpenAIAPIKey == "" {
			return engine.Credentials{}, errors.New("OPENAI_API_KEY is not set")
		}
		return engine.Credentials{APIKey: cfg.OpenAIAPIKey}, nil
	}
}

// ResolveNewSession resolves the parameters of a new session for engine
// name, starting from the user's values, and validates the result. Unknown
// keys and out-of-range values fail with a *engine.ConfigurationError, so a
// stored session always opens.
func ResolveNewSession(reg *engine.Registry, cfg config.Config, name string, values session.Params, log zerolog.Logger) (session.Params, error) {
	d, err := reg.Lookup(name)
	if err != nil {
		return nil, err
	}
	decl := d.Parameters()
	if err := engine.ValidateParams(decl, values); err != nil {
		return nil, err
	}
	resolved, err := engine.ResolveParameters(decl, values)
	if err != nil {
		return nil, err
	}
	params := engine.ResolvedValues(resolved)
	if err := engine.ValidateParams(decl, params); err != nil {
		return nil, err
	}
	if err := episodic.ValidateNewSession(d.Provider, params, Deps(cfg, log)); err != nil {
		return nil, err
	}
	return params, nil
}

// CreateEngine builds the engine a stored session was created with.
func CreateEngine(ctx context.Context, store session.Store, sess *session.Session, cfg config.Config, reg *engine.Registry, runner sandbox.Runner, log zerolog.Logger, hooks ...engine.Hook) (*engine.Engine, error) {
	d, err := reg.Lookup(sess.EngineName)
	if err != nil {
		return nil, err
	}
	creds, err := Credentials(d, sess.EngineParams, cfg)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", d.Name, err)
	}
	v, err := reg.Create(ctx, d.Name, creds)
	if err != nil {
		return nil, err
	}

	toolLog := log.With().Str("session", sess.SessionKey).Logger()
	registry := tools.NewRegistry(tools.Options{
		Runner:    runner,
		CondaPath: cfg.CondaPath,
		CondaEnv:  cfg.CondaEnv,
		Timeout:   cfg.Sandbox.CmdTimeout,
		Logger:    &toolLog,
	})
	return engine.New(ctx, store, sess, v, engine.Options{
		CondaPath:   cfg.CondaPath,
		BranchLimit: cfg.BranchLimit,
		Tools:       registry,
		Logger:      &log,
		Hooks:       append([]engine.Hook{engine.LoggerHook{L: log}}, hooks...),
	})
}
