package base

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/engine"
)

func TestOnceYieldsResultOrError(t *testing.T) {
	tool := New("t", "desc", `{"type":"object"}`)

	var got []engine.ToolEvent
	for ev := range tool.Once(context.Background(), func(context.Context) (*engine.ToolResult, error) {
		return &engine.ToolResult{Content: "ok", Success: true}, nil
	}) {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Result)
	assert.Equal(t, "ok", got[0].Result.Content)

	boom := errors.New("boom")
	got = got[:0]
	for ev := range tool.Once(context.Background(), func(context.Context) (*engine.ToolResult, error) {
		return nil, boom
	}) {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].Err, boom)
}

func TestStopExecutionCancelsRun(t *testing.T) {
	tool := New("t", "", "")
	started := make(chan struct{})
	go func() {
		<-started
		tool.StopExecution()
	}()

	var err error
	for ev := range tool.Once(context.Background(), func(ctx context.Context) (*engine.ToolResult, error) {
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &engine.ToolResult{}, nil
		}
	}) {
		err = ev.Err
	}
	assert.ErrorIs(t, err, context.Canceled)

	// No run in flight.
	tool.StopExecution()
}

func TestFinishedRunKeepsNewerRunStoppable(t *testing.T) {
	tests := []struct {
		name      string
		stopFirst bool
	}{
		{name: "first run stopped before second begins", stopFirst: true},
		{name: "first run ends on its own"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := New("t", "", "")

			first, doneFirst := tool.Begin(context.Background())
			if tt.stopFirst {
				tool.StopExecution()
				require.ErrorIs(t, first.Err(), context.Canceled)
			}
			second, doneSecond := tool.Begin(context.Background())
			defer doneSecond()

			doneFirst()
			require.NoError(t, second.Err())

			tool.StopExecution()
			assert.ErrorIs(t, second.Err(), context.Canceled)
		})
	}
}

func TestArgs(t *testing.T) {
	args := map[string]any{
		"s": "x", "b": true, "f": float64(3), "n": json.Number("7"),
		"list": []any{"a", 1, "b"},
	}
	assert.Equal(t, "x", String(args, "s", "d"))
	assert.Equal(t, "d", String(args, "missing", "d"))
	assert.True(t, Bool(args, "b", false))
	assert.Equal(t, 3, Int(args, "f", 0))
	assert.Equal(t, 7, Int(args, "n", 0))
	assert.Equal(t, 9, Int(args, "s", 9))
	assert.Equal(t, []string{"a", "b"}, Strings(args, "list"))
	assert.Nil(t, Strings(args, "missing"))
}
