// Package sandbox runs generated analysis code either in a locked-down
// Docker container or directly on the host.
package sandbox

import (
	"context"
	"io"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Command describes one process to run.
type Command struct {
	// Dir is mounted (Docker) or used as the working directory (host).
	Dir  string
	Name string
	Args []string
	// Timeout <= 0 uses the runner's configured default.
	Timeout time.Duration
	// Output, when set, receives stdout and stderr as they are produced.
	Output io.Writer
}

// Runner runs commands in an isolated (or not) environment.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

func timeoutFor(cmd Command, cfg Config) time.Duration {
	switch {
	case cmd.Timeout > 0:
		return cmd.Timeout
	case cfg.CmdTimeout > 0:
		return cfg.CmdTimeout
	default:
		return defaultCmdTimeout
	}
}
