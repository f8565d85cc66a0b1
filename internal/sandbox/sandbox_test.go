//go:build !windows

package sandbox

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHostRunnerCapturesOutput(t *testing.T) {
	r := &HostRunner{config: DefaultConfig()}
	var live syncBuffer

	res, err := r.Run(context.Background(), Command{
		Dir:    t.TempDir(),
		Name:   "sh",
		Args:   []string{"-c", "echo hello; echo oops 1>&2; exit 3"},
		Output: &live,
	})

	require.NoError(t, err)
	assert.Equal(t, 3, res.Code)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Contains(t, live.String(), "hello")
	assert.Contains(t, live.String(), "oops")
	assert.False(t, res.TimedOut)
}

func TestHostRunnerTimeout(t *testing.T) {
	r := &HostRunner{config: DefaultConfig()}

	start := time.Now()
	res, err := r.Run(context.Background(), Command{
		Dir:     t.TempDir(),
		Name:    "sh",
		Args:    []string{"-c", "sleep 5"},
		Timeout: 100 * time.Millisecond,
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestHostRunnerCancel(t *testing.T) {
	r := &HostRunner{config: DefaultConfig()}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res, err := r.Run(ctx, Command{Dir: t.TempDir(), Name: "sh", Args: []string{"-c", "sleep 5"}})

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.TimedOut)
}

func TestLimits(t *testing.T) {
	assert.Equal(t, int64(1<<30), memoryLimit("1g"))
	assert.Equal(t, int64(512<<20), memoryLimit("512m"))
	assert.Equal(t, int64(defaultMemoryBytes), memoryLimit(""))
	assert.Equal(t, int64(defaultMemoryBytes), memoryLimit("lots"))
	assert.InDelta(t, 1.5, cpuLimit("1.5"), 1e-9)
	assert.InDelta(t, defaultCPUs, cpuLimit("-1"), 1e-9)
}

func TestParseModeAndImage(t *testing.T) {
	for in, want := range map[string]Mode{"docker": ModeDocker, "HOST": ModeHost, "": ModeAuto} {
		got, ok := ParseMode(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseMode("vm")
	assert.False(t, ok)

	assert.Equal(t, DefaultPythonImage, DockerImage(Config{}))
	assert.Equal(t, "my/image", DockerImage(Config{DockerImage: "my/image"}))
}

func TestTimeoutFor(t *testing.T) {
	assert.Equal(t, time.Second, timeoutFor(Command{Timeout: time.Second}, Config{CmdTimeout: time.Minute}))
	assert.Equal(t, time.Minute, timeoutFor(Command{}, Config{CmdTimeout: time.Minute}))
	assert.Equal(t, defaultCmdTimeout, timeoutFor(Command{}, Config{}))
}
