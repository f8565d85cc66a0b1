package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DrShushen/climb/internal/config"
	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/factory"
	"github.com/DrShushen/climb/internal/session"
)

// appEnv is built once per command from the environment.
type appEnv struct {
	cfg    config.Config
	log    zerolog.Logger
	reg    *engine.Registry
	prefs  *config.Manager
	store  session.Store
	closer io.Closer
}

var (
	logLevel string
	app      *appEnv
)

var rootCmd = &cobra.Command{
	Use:   "climb",
	Short: "CliMB - a research assistant that runs plan-driven data science projects",
	Long: `climb drives research sessions with an LLM engine. A coordinator agent
walks through the episodes of a plan file and hands each one to a worker
agent that inspects data and runs code in the session's working directory.

Configuration is read from the environment (and a .env file):
  OPENAI_API_KEY, ANTHROPIC_API_KEY   provider keys
  CONDA_PATH, CLIMB_CONDA_ENV         interpreter for generated code
  BRANCH_LIMIT                        restart branches kept per message
  CLIMB_DATA_DIR, CLIMB_PLANS_DIR     where sessions and plans live
  CLIMB_STORE                         file or sqlite
  CLIMB_CONFIG_DIR                    where saved preferences live
  CLIMB_SANDBOX_MODE                  auto, docker or host`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		env, err := newAppEnv()
		if err != nil {
			return err
		}
		app = env
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil && app.closer != nil {
			if err := app.closer.Close(); err != nil {
				app.log.Warn().Err(err).Msg("close session store")
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override CLIMB_LOG_LEVEL (debug, info, warn, error)")
	rootCmd.AddCommand(sessionsCmd, chatCmd, plansCmd, enginesCmd, configCmd)
}

func newAppEnv() (*appEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
		cfg.LogLevel = level
	}
	var prefs *config.Manager
	if dir := os.Getenv("CLIMB_CONFIG_DIR"); dir != "" {
		prefs = config.NewManagerAt(dir)
	} else if prefs, err = config.NewManager(); err != nil {
		return nil, err
	}
	log := cfg.NewLogger()
	return &appEnv{
		cfg:   cfg,
		log:   log,
		reg:   factory.NewRegistry(cfg, log),
		prefs: prefs,
	}, nil
}

// Store opens the session store on first use.
func (a *appEnv) Store(ctx context.Context) (session.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, closer, err := factory.OpenStore(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.store, a.closer = store, closer
	return store, nil
}

// parseParams turns key=value flags into engine parameters. Values that
// parse as JSON keep their JSON type; anything else is a string.
func parseParams(pairs []string) (session.Params, error) {
	params := session.Params{}
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("parameter %q must look like key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		params[key] = v
	}
	return params, nil
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
