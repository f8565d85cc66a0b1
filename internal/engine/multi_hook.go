package engine

import (
	"context"
	"time"

	"github.com/DrShushen/climb/internal/session"
)

// Hooks fans every callback out to each hook in order.
type Hooks []Hook

func (hs Hooks) OnCycleStart(ctx context.Context, s *session.Session, agent string) {
	for _, h := range hs {
		h.OnCycleStart(ctx, s, agent)
	}
}
func (hs Hooks) OnBeforeLLM(ctx context.Context, s *session.Session, m []session.Message, schemas []ToolSchema) {
	for _, h := range hs {
		h.OnBeforeLLM(ctx, s, m, schemas)
	}
}
func (hs Hooks) OnSegmentFlushed(ctx context.Context, s *session.Session, msg session.Message) {
	for _, h := range hs {
		h.OnSegmentFlushed(ctx, s, msg)
	}
}
func (hs Hooks) OnStreamError(ctx context.Context, s *session.Session, err error) {
	for _, h := range hs {
		h.OnStreamError(ctx, s, err)
	}
}
func (hs Hooks) OnDispatch(ctx context.Context, s *session.Session, prev, next session.EngineState) {
	for _, h := range hs {
		h.OnDispatch(ctx, s, prev, next)
	}
}
func (hs Hooks) OnToolStart(ctx context.Context, s *session.Session, c session.ToolCallRecord) {
	for _, h := range hs {
		h.OnToolStart(ctx, s, c)
	}
}
func (hs Hooks) OnToolOutput(ctx context.Context, s *session.Session, toolName, output string) {
	for _, h := range hs {
		h.OnToolOutput(ctx, s, toolName, output)
	}
}
func (hs Hooks) OnToolDone(ctx context.Context, s *session.Session, c session.ToolCallRecord, err error) {
	for _, h := range hs {
		h.OnToolDone(ctx, s, c, err)
	}
}
func (hs Hooks) OnRetryAttempt(ctx context.Context, s *session.Session, attempt int, delay time.Duration, err error) {
	for _, h := range hs {
		h.OnRetryAttempt(ctx, s, attempt, delay, err)
	}
}
