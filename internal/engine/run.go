package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/DrShushen/climb/internal/session"
)

// DefaultMaxCycles bounds the reasoning cycles RunTurn runs without user input.
const DefaultMaxCycles = 50

// ErrCycleLimit is returned when a turn hits its cycle limit.
var ErrCycleLimit = errors.New("engine: reasoning cycle limit reached")

// TurnOutcome says why RunTurn handed control back.
type TurnOutcome int

const (
	// TurnAwaitingUser means the assistant answered and waits for input.
	TurnAwaitingUser TurnOutcome = iota
	// TurnAwaitingApproval means the last message must be approved first.
	TurnAwaitingApproval
	// TurnProjectCompleted means every planned episode is done.
	TurnProjectCompleted
)

func (o TurnOutcome) String() string {
	switch o {
	case TurnAwaitingApproval:
		return "awaiting_approval"
	case TurnProjectCompleted:
		return "project_completed"
	default:
		return "awaiting_user"
	}
}

// RunTurn drives the engine until it needs the user: it reasons, executes
// the tool calls the agent left pending, and reasons again while tool
// results or an agent switch call for another cycle. Stream chunks are
// passed to onChunk; tool progress is reported through hooks.
func (e *Engine) RunTurn(ctx context.Context, maxCycles int, onChunk func(StreamChunk)) (TurnOutcome, error) {
	if maxCycles <= 0 {
		maxCycles = DefaultMaxCycles
	}
	for cycle := 0; cycle < maxCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return TurnAwaitingUser, fmt.Errorf("turn cancelled: %w", err)
		}
		if e.NeedsApproval() {
			return TurnAwaitingApproval, nil
		}

		for chunk, err := range e.Reason(ctx) {
			if err != nil {
				return TurnAwaitingUser, err
			}
			if onChunk != nil {
				onChunk(chunk)
			}
		}

		if err := e.executePending(ctx); err != nil {
			return TurnAwaitingUser, err
		}
		if !e.needsAnotherCycle() {
			if e.ProjectCompleted() {
				return TurnProjectCompleted, nil
			}
			return TurnAwaitingUser, nil
		}
	}
	return TurnAwaitingUser, fmt.Errorf("%w (%d cycles)", ErrCycleLimit, maxCycles)
}

// executePending runs every unanswered tool call of the latest cycle in
// request order. Tool failures are recorded as tool messages for the LLM.
func (e *Engine) executePending(ctx context.Context) error {
	for _, call := range e.PendingToolCalls() {
		events, err := e.ExecuteToolCall(ctx, call, nil)
		if err != nil {
			return err
		}
		for ev := range events {
			if ev.Err != nil && ctx.Err() != nil {
				return fmt.Errorf("tool %s: %w", call.Name, ctx.Err())
			}
		}
	}
	return nil
}

func (e *Engine) needsAnotherCycle() bool {
	if e.State().AgentSwitched {
		return true
	}
	last, err := e.GetLastMessage()
	if err != nil {
		return false
	}
	return last.Role == session.RoleTool || last.Role == session.RoleCodeExecution
}
