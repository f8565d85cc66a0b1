package engine

import (
	"context"
	"time"

	"github.com/DrShushen/climb/internal/session"
)

// Hook observes the reasoning cycle and tool lifecycle. Hooks run on the
// goroutine driving the engine and must not block.
type Hook interface {
	OnCycleStart(ctx context.Context, s *session.Session, agent string)
	OnBeforeLLM(ctx context.Context, s *session.Session, messages []session.Message, toolSchemas []ToolSchema)
	OnSegmentFlushed(ctx context.Context, s *session.Session, msg session.Message)
	OnStreamError(ctx context.Context, s *session.Session, err error)
	OnDispatch(ctx context.Context, s *session.Session, prev, next session.EngineState)
	OnToolStart(ctx context.Context, s *session.Session, call session.ToolCallRecord)
	OnToolOutput(ctx context.Context, s *session.Session, toolName string, output string)
	OnToolDone(ctx context.Context, s *session.Session, call session.ToolCallRecord, err error)
	OnRetryAttempt(ctx context.Context, s *session.Session, attempt int, delay time.Duration, err error)
}

// NopHook lets you implement only the hooks you need.
type NopHook struct{}

func (NopHook) OnCycleStart(context.Context, *session.Session, string)                                 {}
func (NopHook) OnBeforeLLM(context.Context, *session.Session, []session.Message, []ToolSchema)         {}
func (NopHook) OnSegmentFlushed(context.Context, *session.Session, session.Message)                    {}
func (NopHook) OnStreamError(context.Context, *session.Session, error)                                 {}
func (NopHook) OnDispatch(context.Context, *session.Session, session.EngineState, session.EngineState) {}
func (NopHook) OnToolStart(context.Context, *session.Session, session.ToolCallRecord)                  {}
func (NopHook) OnToolOutput(context.Context, *session.Session, string, string)                         {}
func (NopHook) OnToolDone(context.Context, *session.Session, session.ToolCallRecord, error)            {}
func (NopHook) OnRetryAttempt(context.Context, *session.Session, int, time.Duration, error)            {}
