package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/session"
)

const previewLimit = 200

// LoggerHook writes the cycle trace to a zerolog logger.
type LoggerHook struct{ L zerolog.Logger }

func (h LoggerHook) OnCycleStart(_ context.Context, s *session.Session, agent string) {
	h.L.Debug().Str("session", s.SessionKey).Str("agent", agent).Int("messages", len(s.Messages)).Msg("reason cycle start")
}

func (h LoggerHook) OnBeforeLLM(_ context.Context, s *session.Session, msgs []session.Message, schemas []ToolSchema) {
	h.L.Info().Str("session", s.SessionKey).Int("sent", len(msgs)).Int("history", len(s.Messages)).Int("tools", len(schemas)).Msg("calling llm")
}

func (h LoggerHook) OnSegmentFlushed(_ context.Context, s *session.Session, msg session.Message) {
	ev := h.L.Debug().Str("session", s.SessionKey).Str("key", msg.Key).Str("agent", msg.Agent)
	if msg.HasToolCalls() {
		names := make([]string, 0, len(msg.ToolCalls))
		for _, c := range msg.ToolCalls {
			names = append(names, c.Name)
		}
		ev.Strs("tool_calls", names).Msg("tool call segment")
		return
	}
	ev.Int("chars", len(msg.Content)).Msg("text segment")
}

func (h LoggerHook) OnStreamError(_ context.Context, s *session.Session, err error) {
	h.L.Error().Err(err).Str("session", s.SessionKey).Msg("stream failed")
}

func (h LoggerHook) OnDispatch(_ context.Context, s *session.Session, prev, next session.EngineState) {
	ev := h.L.Info().Str("session", s.SessionKey).Str("agent", next.Agent).Str("response_kind", string(next.ResponseKind))
	if next.AgentSwitched {
		ev = ev.Str("from", prev.Agent)
	}
	ev.Msg("dispatched")
}

func (h LoggerHook) OnToolStart(_ context.Context, s *session.Session, c session.ToolCallRecord) {
	h.L.Info().Str("session", s.SessionKey).Str("tool", c.Name).Str("args", preview(c.Arguments)).Msg("tool start")
}

func (h LoggerHook) OnToolOutput(_ context.Context, _ *session.Session, toolName string, output string) {
	h.L.Trace().Str("tool", toolName).Str("output", preview(output)).Msg("tool output")
}

func (h LoggerHook) OnToolDone(_ context.Context, s *session.Session, c session.ToolCallRecord, err error) {
	if err != nil {
		h.L.Warn().Err(err).Str("session", s.SessionKey).Str("tool", c.Name).Msg("tool failed")
		return
	}
	h.L.Info().Str("session", s.SessionKey).Str("tool", c.Name).Msg("tool done")
}

func (h LoggerHook) OnRetryAttempt(_ context.Context, s *session.Session, attempt int, delay time.Duration, err error) {
	h.L.Warn().Err(err).Str("session", s.SessionKey).Int("attempt", attempt).Dur("delay", delay).Msg("retrying llm stream")
}

func preview(s string) string {
	if len(s) > previewLimit {
		return s[:previewLimit] + "..."
	}
	return s
}
