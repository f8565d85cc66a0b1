package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

const (
	defaultMemoryBytes = 1 << 30
	defaultCPUs        = 2.0
)

// DockerRunner runs commands in isolated Docker containers with the working
// directory bind-mounted at /workspace.
type DockerRunner struct {
	client *client.Client
	config Config
}

// NewDockerRunner creates a new Docker-based runner.
func NewDockerRunner(ctx context.Context, cfg Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return &DockerRunner{client: cli, config: cfg}, nil
}

// Run executes cmd in a fresh container. Network access is disabled and the
// root filesystem is read-only; only the working directory and /tmp are writable.
func (r *DockerRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	img := DockerImage(r.config)
	if err := r.ensureImage(ctx, img); err != nil {
		return Result{}, fmt.Errorf("ensure image %s: %w", img, err)
	}
	absDir, err := filepath.Abs(cmd.Dir)
	if err != nil {
		return Result{}, fmt.Errorf("resolve working directory: %w", err)
	}

	containerConfig := &container.Config{
		Image:           img,
		Cmd:             append([]string{cmd.Name}, cmd.Args...),
		WorkingDir:      "/workspace",
		User:            "1000:1000",
		Env:             []string{"HOME=/tmp", "MPLCONFIGDIR=/tmp"},
		NetworkDisabled: true,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{{Type: mount.TypeBind, Source: absDir, Target: "/workspace"}},
		Resources: container.Resources{
			Memory:   memoryLimit(r.config.Memory),
			NanoCPUs: int64(cpuLimit(r.config.CPU) * 1e9),
			Ulimits:  []*units.Ulimit{{Name: "nofile", Soft: 1024, Hard: 1024}},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,noexec,nosuid,size=100m"},
	}

	created, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("create container: %w", err)
	}
	id := created.ID
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.client.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true})
	}()

	execCtx, cancel := context.WithTimeout(ctx, timeoutFor(cmd, r.config))
	defer cancel()

	if err := r.client.ContainerStart(execCtx, id, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, id, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer killCancel()
		_ = r.client.ContainerKill(killCtx, id, "SIGKILL")
		res := Result{Code: 1, TimedOut: errors.Is(execCtx.Err(), context.DeadlineExceeded), Stderr: "command execution stopped"}
		return res, execCtx.Err()
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("wait for container: %w", err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := r.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{}, fmt.Errorf("read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	outW, errW := io.Writer(&stdout), io.Writer(&stderr)
	if cmd.Output != nil {
		outW, errW = io.MultiWriter(&stdout, cmd.Output), io.MultiWriter(&stderr, cmd.Output)
	}
	if _, err := stdcopy.StdCopy(outW, errW, logs); err != nil {
		return Result{}, fmt.Errorf("demultiplex container logs: %w", err)
	}

	return Result{
		Stdout: strings.TrimSuffix(stdout.String(), "\n"),
		Stderr: strings.TrimSuffix(stderr.String(), "\n"),
		Code:   int(exitCode),
	}, nil
}

// ensureImage pulls imageName unless it is already present.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, imageName); err == nil {
		return nil
	}
	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer reader.Close()
	// The pull only completes once its progress stream is drained.
	_, err = io.Copy(io.Discard, reader)
	return err
}

// memoryLimit parses sizes like "1g", "512m" or "2GiB" into bytes.
func memoryLimit(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultMemoryBytes
	}
	n, err := units.RAMInBytes(s)
	if err != nil || n <= 0 {
		return defaultMemoryBytes
	}
	return n
}

// cpuLimit parses a fractional CPU count such as "1.5".
func cpuLimit(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return defaultCPUs
	}
	return v
}
