// Package base holds the plumbing shared by the concrete tools: identity,
// cooperative stop, and argument decoding.
package base

import (
	"context"
	"iter"
	"sync"

	"github.com/DrShushen/climb/internal/engine"
)

// Tool implements the identity and StopExecution parts of engine.Tool.
// Concrete tools embed it and add Execute.
type Tool struct {
	name        string
	description string
	schema      string

	mu     sync.Mutex
	cancel context.CancelFunc
	run    uint64 // incremented by every Begin
}

// New returns a Tool with the given identity.
func New(name, description, schema string) Tool {
	return Tool{name: name, description: description, schema: schema}
}

func (t *Tool) Name() string        { return t.name }
func (t *Tool) Description() string { return t.description }
func (t *Tool) SchemaJSON() string  { return t.schema }

// Begin derives the context a single run executes under. StopExecution
// cancels it. The returned func must be called when the run ends; it only
// forgets the run's cancel func if no later run has replaced it.
func (t *Tool) Begin(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.run++
	run := t.run
	t.cancel = cancel
	t.mu.Unlock()
	return ctx, func() {
		t.mu.Lock()
		if t.run == run {
			t.cancel = nil
		}
		t.mu.Unlock()
		cancel()
	}
}

// StopExecution cancels the current run, if any.
func (t *Tool) StopExecution() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// Once adapts a synchronous tool body into a one-event sequence.
func (t *Tool) Once(ctx context.Context, fn func(ctx context.Context) (*engine.ToolResult, error)) iter.Seq[engine.ToolEvent] {
	return func(yield func(engine.ToolEvent) bool) {
		ctx, done := t.Begin(ctx)
		defer done()
		res, err := fn(ctx)
		if err != nil {
			yield(engine.ToolEvent{Err: err})
			return
		}
		yield(engine.ToolEvent{Result: res})
	}
}
