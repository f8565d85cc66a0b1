// Package config holds process configuration read from the environment,
// the user's preference file and Azure OpenAI config items.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/sandbox"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config is built once at process start and passed down explicitly.
type Config struct {
	BranchLimit     int
	OpenAIAPIKey    string
	AnthropicAPIKey string
	// CondaPath is the conda executable; empty runs code with the plain interpreter.
	CondaPath   string
	CondaEnv    string
	DataDir     string
	PlansDir    string
	AzureConfig string
	Store       string
	LogLevel    zerolog.Level
	LogFormat   string
	Sandbox     sandbox.Config
}

// SessionsDir holds one working directory per session.
func (c Config) SessionsDir() string { return filepath.Join(c.DataDir, "sessions") }

// StorePath is the file store directory or the sqlite database file.
func (c Config) StorePath() string {
	if c.Store == StoreSQLite {
		return filepath.Join(c.DataDir, "climb.db")
	}
	return filepath.Join(c.DataDir, "db")
}

// Load reads the configuration from the process environment. Call
// godotenv.Load first to pick up a .env file.
func Load() (Config, error) {
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from an environment lookup function.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		OpenAIAPIKey:    get("OPENAI_API_KEY", ""),
		AnthropicAPIKey: get("ANTHROPIC_API_KEY", ""),
		CondaPath:       strings.ReplaceAll(get("CONDA_PATH", ""), `\`, "/"),
		CondaEnv:        get("CLIMB_CONDA_ENV", "climb"),
		PlansDir:        get("CLIMB_PLANS_DIR", "plans"),
		AzureConfig:     get("CLIMB_AZURE_CONFIG", "az_openai_config.yml"),
		Store:           get("CLIMB_STORE", StoreFile),
		LogFormat:       get("CLIMB_LOG_FORMAT", "text"),
		Sandbox:         sandbox.DefaultConfig(),
	}

	limit, err := strconv.Atoi(get("BRANCH_LIMIT", "2"))
	if err != nil || limit < 1 {
		return Config{}, fmt.Errorf("config: BRANCH_LIMIT must be a positive integer, got %q", get("BRANCH_LIMIT", ""))
	}
	cfg.BranchLimit = limit

	if cfg.Store != StoreFile && cfg.Store != StoreSQLite {
		return Config{}, fmt.Errorf("config: CLIMB_STORE must be %q or %q, got %q", StoreFile, StoreSQLite, cfg.Store)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(get("CLIMB_LOG_LEVEL", "info")))
	if err != nil {
		return Config{}, fmt.Errorf("config: CLIMB_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	dataDir := get("CLIMB_DATA_DIR", "")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".climb")
	}
	cfg.DataDir = dataDir

	mode, ok := sandbox.ParseMode(get("CLIMB_SANDBOX_MODE", ""))
	if !ok {
		return Config{}, fmt.Errorf("config: unknown CLIMB_SANDBOX_MODE %q", get("CLIMB_SANDBOX_MODE", ""))
	}
	cfg.Sandbox.Mode = mode
	cfg.Sandbox.DockerImage = get("CLIMB_DOCKER_IMAGE", "")
	cfg.Sandbox.CPU = get("CLIMB_DOCKER_CPU", cfg.Sandbox.CPU)
	cfg.Sandbox.Memory = get("CLIMB_DOCKER_MEMORY", cfg.Sandbox.Memory)
	if raw := get("CLIMB_CMD_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: CLIMB_CMD_TIMEOUT: %w", err)
		}
		cfg.Sandbox.CmdTimeout = d
	}
	return cfg, nil
}

// NewLogger builds the process logger: a console writer for the text
// format, JSON otherwise.
func (c Config) NewLogger() zerolog.Logger {
	var l zerolog.Logger
	if c.LogFormat == "text" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(c.LogLevel).With().Timestamp().Logger()
}
