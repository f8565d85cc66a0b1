// Package protocol defines the NDJSON messages exchanged between a chat
// front end and an engine served over stdio.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CommandType enumerates all supported front end -> engine commands.
type CommandType string

const (
	CommandUserMessage   CommandType = "user_message"
	CommandCancelRequest CommandType = "cancel_request"
	CommandApprove       CommandType = "approve"
	CommandRestart       CommandType = "restart"
	CommandGetPlan       CommandType = "get_plan"
)

// Command is a marker interface implemented by all protocol commands.
type Command interface {
	GetType() CommandType
}

// UserMessageCommand sends user input to the engine.
type UserMessageCommand struct {
	Type    CommandType `json:"type"`
	Message string      `json:"message"`
}

// GetType implements Command.
func (c UserMessageCommand) GetType() CommandType { return CommandUserMessage }

// CancelRequestCommand stops the running tool or reasoning cycle.
type CancelRequestCommand struct {
	Type   CommandType `json:"type"`
	Reason string      `json:"reason,omitempty"`
}

// GetType implements Command.
func (c CancelRequestCommand) GetType() CommandType { return CommandCancelRequest }

// ApproveCommand approves the last message in guardrail_with_approval mode.
type ApproveCommand struct {
	Type CommandType `json:"type"`
}

// GetType implements Command.
func (c ApproveCommand) GetType() CommandType { return CommandApprove }

// RestartCommand rewinds the conversation to a user message.
type RestartCommand struct {
	Type       CommandType `json:"type"`
	MessageKey string      `json:"message_key"`
}

// GetType implements Command.
func (c RestartCommand) GetType() CommandType { return CommandRestart }

// GetPlanCommand asks for the current plan progress.
type GetPlanCommand struct {
	Type CommandType `json:"type"`
}

// GetType implements Command.
func (c GetPlanCommand) GetType() CommandType { return CommandGetPlan }

type rawCommand struct {
	Type CommandType `json:"type"`
}

// DecodeCommand converts raw JSON into a strongly typed command.
func DecodeCommand(data []byte) (Command, error) {
	var base rawCommand
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	switch base.Type {
	case CommandUserMessage:
		var cmd UserMessageCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode user_message: %w", err)
		}
		if cmd.Message == "" {
			return nil, errors.New("user_message requires message")
		}
		return cmd, nil
	case CommandCancelRequest:
		var cmd CancelRequestCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode cancel_request: %w", err)
		}
		return cmd, nil
	case CommandApprove:
		return ApproveCommand{Type: CommandApprove}, nil
	case CommandRestart:
		var cmd RestartCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode restart: %w", err)
		}
		if cmd.MessageKey == "" {
			return nil, errors.New("restart requires message_key")
		}
		return cmd, nil
	case CommandGetPlan:
		return GetPlanCommand{Type: CommandGetPlan}, nil
	default:
		return nil, fmt.Errorf("unknown command type: %s", base.Type)
	}
}

// EventType enumerates engine -> front end events.
type EventType string

const (
	EventAssistantText EventType = "assistant_text"
	EventStatus        EventType = "status"
	EventTool          EventType = "tool_event"
	EventToolOutput    EventType = "tool_output"
	EventTokenUsage    EventType = "token_usage"
	EventProjectPlan   EventType = "project_plan"
	EventDone          EventType = "done"
	EventError         EventType = "error"
	EventCancelled     EventType = "cancelled"
)

// Statuses carried by StatusEvent.
const (
	StatusSessionReady     = "session_ready"
	StatusAgentSwitched    = "agent_switched"
	StatusAwaitingApproval = "awaiting_approval"
	StatusProjectCompleted = "project_completed"
	StatusRestarted        = "restarted"
)

// Event is implemented by every outgoing message.
type Event interface {
	isEvent()
	GetType() EventType
}

// MarshalEvent serializes an event into JSON for NDJSON transport.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

type eventBase struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
}

func (eventBase) isEvent() {}

// AssistantTextEvent streams assistant text back to the front end.
type AssistantTextEvent struct {
	eventBase
	Content string `json:"content"`
	Agent   string `json:"agent,omitempty"`
	Final   bool   `json:"final,omitempty"`
}

// NewAssistantTextEvent constructs an assistant_text event.
func NewAssistantTextEvent(sessionID, content, agent string, final bool) AssistantTextEvent {
	return AssistantTextEvent{
		eventBase: eventBase{Type: EventAssistantText, SessionID: sessionID},
		Content:   content,
		Agent:     agent,
		Final:     final,
	}
}

// GetType implements Event.
func (e AssistantTextEvent) GetType() EventType { return e.Type }

// StatusEvent reports a change in engine status.
type StatusEvent struct {
	eventBase
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// NewStatusEvent constructs a status event.
func NewStatusEvent(sessionID, status, detail string) StatusEvent {
	return StatusEvent{
		eventBase: eventBase{Type: EventStatus, SessionID: sessionID},
		Status:    status,
		Detail:    detail,
	}
}

// GetType implements Event.
func (e StatusEvent) GetType() EventType { return e.Type }

// Tool phases.
const (
	ToolPhaseStart = "start"
	ToolPhaseDone  = "done"
)

// ToolEvent marks the start and end of a tool run.
type ToolEvent struct {
	eventBase
	Tool        string `json:"tool"`
	CallID      string `json:"call_id,omitempty"`
	Phase       string `json:"phase"`
	Description string `json:"description,omitempty"`
	Success     *bool  `json:"success,omitempty"`
	Details     string `json:"details,omitempty"`
}

// NewToolEvent constructs a tool_event.
func NewToolEvent(sessionID, tool, callID, phase string, success *bool, details string) ToolEvent {
	return ToolEvent{
		eventBase: eventBase{Type: EventTool, SessionID: sessionID},
		Tool:      tool,
		CallID:    callID,
		Phase:     phase,
		Success:   success,
		Details:   details,
	}
}

// GetType implements Event.
func (e ToolEvent) GetType() EventType { return e.Type }

// ToolOutputEvent carries incremental output of a running tool.
type ToolOutputEvent struct {
	eventBase
	Tool   string `json:"tool"`
	CallID string `json:"call_id,omitempty"`
	Output string `json:"output"`
}

// NewToolOutputEvent constructs a tool_output event.
func NewToolOutputEvent(sessionID, tool, callID, output string) ToolOutputEvent {
	return ToolOutputEvent{
		eventBase: eventBase{Type: EventToolOutput, SessionID: sessionID},
		Tool:      tool,
		CallID:    callID,
		Output:    output,
	}
}

// GetType implements Event.
func (e ToolOutputEvent) GetType() EventType { return e.Type }

// TokenUsageEvent reports total tokens used per agent.
type TokenUsageEvent struct {
	eventBase
	Agents map[string]int `json:"agents"`
	Total  int            `json:"total"`
}

// NewTokenUsageEvent constructs a token_usage event.
func NewTokenUsageEvent(sessionID string, agents map[string]int) TokenUsageEvent {
	total := 0
	for _, n := range agents {
		total += n
	}
	return TokenUsageEvent{
		eventBase: eventBase{Type: EventTokenUsage, SessionID: sessionID},
		Agents:    agents,
		Total:     total,
	}
}

// GetType implements Event.
func (e TokenUsageEvent) GetType() EventType { return e.Type }

// ProjectPlanEvent carries the engine's current plan view.
type ProjectPlanEvent struct {
	eventBase
	Plan any `json:"plan"`
}

// NewProjectPlanEvent constructs a project_plan event.
func NewProjectPlanEvent(sessionID string, plan any) ProjectPlanEvent {
	return ProjectPlanEvent{
		eventBase: eventBase{Type: EventProjectPlan, SessionID: sessionID},
		Plan:      plan,
	}
}

// GetType implements Event.
func (e ProjectPlanEvent) GetType() EventType { return e.Type }

// DoneEvent ends a turn: the engine waits for user input.
type DoneEvent struct {
	eventBase
	Agent string `json:"agent"`
}

// NewDoneEvent constructs a done event.
func NewDoneEvent(sessionID, agent string) DoneEvent {
	return DoneEvent{
		eventBase: eventBase{Type: EventDone, SessionID: sessionID},
		Agent:     agent,
	}
}

// GetType implements Event.
func (e DoneEvent) GetType() EventType { return e.Type }

// ErrorEvent reports a failure.
type ErrorEvent struct {
	eventBase
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewErrorEvent constructs an error event.
func NewErrorEvent(sessionID, message, kind, details string) ErrorEvent {
	return ErrorEvent{
		eventBase: eventBase{Type: EventError, SessionID: sessionID},
		Message:   message,
		Kind:      kind,
		Details:   details,
	}
}

// GetType implements Event.
func (e ErrorEvent) GetType() EventType { return e.Type }

// CancelledEvent confirms a cancel_request.
type CancelledEvent struct {
	eventBase
	Reason string `json:"reason,omitempty"`
}

// NewCancelledEvent constructs a cancelled event.
func NewCancelledEvent(sessionID, reason string) CancelledEvent {
	return CancelledEvent{
		eventBase: eventBase{Type: EventCancelled, SessionID: sessionID},
		Reason:    reason,
	}
}

// GetType implements Event.
func (e CancelledEvent) GetType() EventType { return e.Type }
