package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DrShushen/climb/internal/session"
)

// MessageRole represents the role of a chat message sent to a provider.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ChatMessage is the provider-agnostic message we pass to LLM clients.
type ChatMessage struct {
	Role    MessageRole
	Content string
	Name    string // tool call ID for tool messages
	// ToolCalls made by an assistant message; providers require them to pair tool results.
	ToolCalls []ToolCall
}

// Validate reports a role providers do not know, a tool result without the
// ID of the call it answers, or a tool call without an ID or name.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
	default:
		return fmt.Errorf("unknown message role %q", m.Role)
	}
	if m.Role == RoleTool && m.Name == "" {
		return fmt.Errorf("tool result has no call ID")
	}
	for _, c := range m.ToolCalls {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("tool call %q (%s) needs both an ID and a name", c.ID, c.Name)
		}
	}
	return nil
}

// Usage holds token accounting returned by providers.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// ToolCall represents a function/tool the assistant requested.
type ToolCall struct {
	ID    string
	Name  string
	Args  map[string]any
	Error string // set by the provider if the call arrived incomplete
}

// Record converts the call into its persisted form.
func (c ToolCall) Record() session.ToolCallRecord {
	args := c.Args
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	return session.ToolCallRecord{ID: c.ID, Name: c.Name, Arguments: string(raw), Error: c.Error}
}

// ToolCallFromRecord restores a provider tool call from its persisted form.
func ToolCallFromRecord(r session.ToolCallRecord) ToolCall {
	args := map[string]any{}
	if r.Arguments != "" {
		if err := json.Unmarshal([]byte(r.Arguments), &args); err != nil {
			args = map[string]any{}
		}
	}
	return ToolCall{ID: r.ID, Name: r.Name, Args: args, Error: r.Error}
}

// LLMClient abstracts a streaming provider SDK (OpenAI, Anthropic, etc.).
// The error channel is closed when the stream ends; a non-nil value on it is terminal.
type LLMClient interface {
	Stream(ctx context.Context, model string, messages []ChatMessage, toolSchemas []ToolSchema, opts ChatOptions) (<-chan StreamEvent, <-chan error)
}

// ChatOptions keeps knobs forwarded to the SDK.
type ChatOptions struct {
	Temperature     float32
	MaxOutputTokens int
}

// ToolSchema is the JSON schema the provider expects for function calling.
type ToolSchema struct {
	Name        string
	Description string
	JSONSchema  string // kept as raw JSON
}

// Stream event types.
const (
	EventTextDelta = "text_delta"
	EventToolCall  = "tool_call"
	EventUsage     = "usage"
)

// StreamEvent represents a streaming event from the LLM.
type StreamEvent struct {
	Type     string // "text_delta" | "tool_call" | "usage"
	Text     string
	ToolCall ToolCall
	Usage    Usage
}
