//go:build !windows

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"
)

// HostRunner runs commands directly on the host machine without isolation.
// Use it only when Docker is unavailable or explicitly requested.
type HostRunner struct {
	config Config
}

// Run starts cmd in its own process group so that cancellation kills the
// whole tree, including interpreters spawned by conda.
func (r *HostRunner) Run(ctx context.Context, c Command) (Result, error) {
	cctx, cancel := context.WithTimeout(ctx, timeoutFor(c, r.config))
	defer cancel()

	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	if c.Output != nil {
		out := &lockedWriter{w: c.Output}
		cmd.Stdout = io.MultiWriter(&stdout, out)
		cmd.Stderr = io.MultiWriter(&stderr, out)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-cctx.Done():
			// Negative PID targets the process group.
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		case <-done:
		}
	}()
	waitErr := cmd.Wait()
	close(done)

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if cctx.Err() != nil {
		res.TimedOut = errors.Is(cctx.Err(), context.DeadlineExceeded)
	}
	if waitErr == nil {
		return res, nil
	}
	res.Code = 1
	if cctx.Err() != nil {
		return res, cctx.Err()
	}
	// A non-zero exit is a result, not a runner failure.
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		res.Code = exitErr.ExitCode()
		return res, nil
	}
	return res, waitErr
}
