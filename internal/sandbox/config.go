package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
)

const defaultCmdTimeout = 2 * time.Minute

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

// ParseMode maps a configuration string onto a Mode. Unknown values select ModeAuto.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeDocker:
		return ModeDocker, true
	case ModeHost:
		return ModeHost, true
	case ModeAuto, "":
		return ModeAuto, true
	}
	return ModeAuto, false
}

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	DockerImage string        // overrides DefaultPythonImage
	CPU         string        // CPU limit, e.g. "2" or "1.5"
	Memory      string        // memory limit, e.g. "1g" or "512MiB"
	CmdTimeout  time.Duration // 0 uses the default of two minutes
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{Mode: ModeAuto, CPU: "2", Memory: "1g", CmdTimeout: defaultCmdTimeout}
}

// IsDockerAvailable reports whether a Docker daemon answers a ping.
func IsDockerAvailable(ctx context.Context) bool {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false
	}
	defer cli.Close()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err = cli.Ping(ctx)
	return err == nil
}

// NewDefaultRunner creates a runner for cfg.Mode:
//   - docker: Docker, falling back to host with a warning if unavailable
//   - host: host executor (no isolation)
//   - auto: Docker if available, otherwise host
func NewDefaultRunner(ctx context.Context, cfg Config, log zerolog.Logger) Runner {
	host := &HostRunner{config: cfg}
	switch cfg.Mode {
	case ModeHost:
		log.Warn().Msg("using host executor (no sandboxing); generated code runs with your permissions")
		return host
	case ModeDocker, ModeAuto:
		if !IsDockerAvailable(ctx) {
			log.Warn().Str("mode", string(cfg.Mode)).Msg("docker not available, using host executor (no sandboxing)")
			return host
		}
		docker, err := NewDockerRunner(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("failed to create docker runner, using host executor")
			return host
		}
		return docker
	default:
		log.Warn().Str("mode", string(cfg.Mode)).Msg("unknown sandbox mode, using host executor")
		return host
	}
}

// NewRunner creates a specific runner implementation.
func NewRunner(ctx context.Context, mode Mode, cfg Config) (Runner, error) {
	switch mode {
	case ModeDocker:
		return NewDockerRunner(ctx, cfg)
	case ModeHost:
		return &HostRunner{config: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown runner mode: %s", mode)
	}
}
