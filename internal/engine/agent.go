package engine

import (
	"context"
	"fmt"

	"github.com/DrShushen/climb/internal/session"
)

// Built-in agent types.
const (
	AgentCoordinator = "coordinator"
	AgentWorker      = "worker"
)

// AgentBehavior is the per-agent half of the reasoning cycle.
type AgentBehavior interface {
	// SetInitialMessages seeds a brand-new session.
	SetInitialMessages(ctx context.Context, e *Engine, a *EngineAgent) error
	// GatherMessages assembles the history and tools for the next LLM call.
	GatherMessages(ctx context.Context, e *Engine, a *EngineAgent) ([]session.Message, []ToolSchema, error)
	// Dispatch inspects the newly persisted output and decides the next state.
	Dispatch(ctx context.Context, e *Engine, a *EngineAgent) (session.EngineState, error)
}

// EngineAgent is one role in an engine's state machine.
type EngineAgent struct {
	Type                  string
	SystemMessageTemplate string
	FirstMessageContent   string
	FirstMessageRole      session.Role
	Behavior              AgentBehavior
}

// SeedFirstMessage appends the agent's first message. Behaviors call it
// from SetInitialMessages.
func (a *EngineAgent) SeedFirstMessage(ctx context.Context, e *Engine) error {
	if a.FirstMessageContent == "" {
		return nil
	}
	role := a.FirstMessageRole
	if role == "" {
		role = session.RoleAssistant
	}
	msg := session.NewMessage(role, session.VisibilityAll, a.FirstMessageContent)
	msg.Agent = a.Type
	msg.EngineState = e.State().Ptr()
	return e.AppendMessage(ctx, msg)
}

// ChatHistory converts persisted messages into provider messages, prefixed
// by an optional system prompt. It fails on a message no provider would
// accept, such as a tool result without its call ID.
func ChatHistory(system string, msgs []session.Message) ([]ChatMessage, error) {
	out := make([]ChatMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, ChatMessage{Role: RoleSystem, Content: system})
	}
	for _, m := range msgs {
		n := len(out)
		switch m.Role {
		case session.RoleSystem:
			out = append(out, ChatMessage{Role: RoleSystem, Content: m.Content})
		case session.RoleUser:
			out = append(out, ChatMessage{Role: RoleUser, Content: m.Content})
		case session.RoleAssistant:
			cm := ChatMessage{Role: RoleAssistant, Content: m.Content}
			for _, rec := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, ToolCallFromRecord(rec))
			}
			out = append(out, cm)
		case session.RoleTool:
			out = append(out, ChatMessage{Role: RoleTool, Name: m.ToolCallKey, Content: m.Content})
		case session.RoleCodeExecution:
			out = append(out, ChatMessage{Role: RoleUser, Content: "Code execution output:\n" + m.Content})
		}
		if len(out) > n {
			if err := out[n].Validate(); err != nil {
				return nil, fmt.Errorf("message %s: %w", m.Key, err)
			}
		}
	}
	return out, nil
}
