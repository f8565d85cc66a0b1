// Package chat drives an engine on behalf of a front end: it runs turns,
// turns engine callbacks into protocol events and serves them either as
// NDJSON over stdio or as plain text for a terminal.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DrShushen/climb/internal/engine"
	"github.com/DrShushen/climb/internal/engine/protocol"
	"github.com/DrShushen/climb/internal/session"
)

// ErrBusy is returned when a turn is requested while another one runs.
var ErrBusy = errors.New("chat: a turn is already running for this session")

// Session is one engine driven by a front end.
type Session struct {
	id        string
	guard     *engine.TurnGuard
	emit      func(protocol.Event)
	hook      *protocolHook
	maxCycles int

	e *engine.Engine

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSession prepares a chat session that reports through emit. Pass
// Hook() to the engine constructor, then Attach the engine.
func NewSession(sessionKey string, guard *engine.TurnGuard, emit func(protocol.Event)) *Session {
	if guard == nil {
		guard = engine.NewTurnGuard()
	}
	s := &Session{id: sessionKey, guard: guard, emit: emit, maxCycles: engine.DefaultMaxCycles}
	s.hook = &protocolHook{s: s}
	return s
}

// Hook returns the engine hook that reports tool and agent progress.
func (s *Session) Hook() engine.Hook { return s.hook }

// Attach binds the engine built with Hook().
func (s *Session) Attach(e *engine.Engine) {
	s.e = e
	s.emit(protocol.NewStatusEvent(s.id, protocol.StatusSessionReady, e.Name()))
}

// Engine returns the attached engine.
func (s *Session) Engine() *engine.Engine { return s.e }

// SetMaxCycles bounds the reasoning cycles of one turn. n <= 0 keeps the default.
func (s *Session) SetMaxCycles(n int) {
	if n > 0 {
		s.maxCycles = n
	}
}

// Running reports whether a turn is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Send records user input and runs a turn. Input typed by the user counts
// as approved.
func (s *Session) Send(ctx context.Context, text string) error {
	return s.turn(ctx, func(ctx context.Context) error {
		if _, err := s.e.IngestUserInput(ctx, text); err != nil {
			return err
		}
		if s.e.PrivacyMode() == engine.PrivacyGuardrailWithApproval {
			return s.e.ApproveLastMessage(ctx)
		}
		return nil
	})
}

// Continue runs a turn without new input, e.g. after a resumed session.
func (s *Session) Continue(ctx context.Context) error {
	return s.turn(ctx, nil)
}

// Approve approves the last message and continues the turn it held up.
func (s *Session) Approve(ctx context.Context) error {
	return s.turn(ctx, s.e.ApproveLastMessage)
}

// Restart rewinds the conversation to the user message with key and
// answers it again.
func (s *Session) Restart(ctx context.Context, key string) error {
	return s.turn(ctx, func(ctx context.Context) error {
		ok, err := s.e.RestartAtUserMessage(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no message with key %s", key)
		}
		s.emit(protocol.NewStatusEvent(s.id, protocol.StatusRestarted, key))
		return nil
	})
}

// Cancel stops the running tool and the running turn, if any.
func (s *Session) Cancel(ctx context.Context, reason string) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	err := s.e.StopToolExecution(ctx)
	s.emit(protocol.NewCancelledEvent(s.id, reason))
	return err
}

// EmitPlan reports the engine's current plan view.
func (s *Session) EmitPlan() {
	if p := s.e.CurrentPlan(); p != nil {
		s.emit(protocol.NewProjectPlanEvent(s.id, p))
	}
}

func (s *Session) turn(ctx context.Context, before func(context.Context) error) error {
	release, ok := s.guard.TryAcquire(s.id)
	if !ok {
		return ErrBusy
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	if before != nil {
		if err := before(ctx); err != nil {
			s.emit(protocol.NewErrorEvent(s.id, err.Error(), "input_error", ""))
			return err
		}
	}

	outcome, err := s.e.RunTurn(ctx, s.maxCycles, s.onChunk)
	s.emit(protocol.NewTokenUsageEvent(s.id, s.e.TokenCounts()))
	s.EmitPlan()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.emit(protocol.NewErrorEvent(s.id, err.Error(), errorKind(err), ""))
		return err
	}

	switch outcome {
	case engine.TurnAwaitingApproval:
		s.emit(protocol.NewStatusEvent(s.id, protocol.StatusAwaitingApproval, lastKey(s.e)))
	case engine.TurnProjectCompleted:
		s.emit(protocol.NewStatusEvent(s.id, protocol.StatusProjectCompleted, ""))
	}
	s.emit(protocol.NewDoneEvent(s.id, s.e.State().Agent))
	return nil
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

func (s *Session) onChunk(c engine.StreamChunk) {
	agent := s.e.State().Agent
	if c.Text != "" {
		s.emit(protocol.NewAssistantTextEvent(s.id, c.Text, agent, false))
	}
	if c.Sentinel == engine.ChunkEndOfStream {
		s.emit(protocol.NewAssistantTextEvent(s.id, "", agent, true))
	}
}

func errorKind(err error) string {
	var llmErr *engine.EngineError
	var cfgErr *engine.ConfigurationError
	switch {
	case errors.As(err, &llmErr):
		return "llm_error"
	case errors.As(err, &cfgErr):
		return "configuration_error"
	case errors.Is(err, engine.ErrCycleLimit):
		return "cycle_limit"
	}
	return "engine_error"
}

func lastKey(e *engine.Engine) string {
	m, err := e.GetLastMessage()
	if err != nil {
		return ""
	}
	return m.Key
}

// protocolHook reports engine progress as protocol events.
type protocolHook struct {
	engine.NopHook
	s *Session
}

func (h *protocolHook) OnDispatch(_ context.Context, _ *session.Session, prev, next session.EngineState) {
	if next.AgentSwitched {
		h.s.emit(protocol.NewStatusEvent(h.s.id, protocol.StatusAgentSwitched, prev.Agent+" to "+next.Agent))
	}
}

func (h *protocolHook) OnToolStart(_ context.Context, _ *session.Session, call session.ToolCallRecord) {
	ev := protocol.NewToolEvent(h.s.id, call.Name, call.ID, protocol.ToolPhaseStart, nil, "")
	if h.s.e != nil {
		ev.Description = h.s.e.DescribeTool(call.Name)
	}
	h.s.emit(ev)
}

func (h *protocolHook) OnToolOutput(_ context.Context, _ *session.Session, toolName, output string) {
	h.s.emit(protocol.NewToolOutputEvent(h.s.id, toolName, "", output))
}

func (h *protocolHook) OnToolDone(_ context.Context, _ *session.Session, call session.ToolCallRecord, err error) {
	success := err == nil
	details := ""
	if err != nil {
		details = err.Error()
	}
	h.s.emit(protocol.NewToolEvent(h.s.id, call.Name, call.ID, protocol.ToolPhaseDone, &success, details))
}
