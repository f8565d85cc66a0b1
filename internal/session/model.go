package session

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem        Role = "system"
	RoleUser          Role = "user"
	RoleAssistant     Role = "assistant"
	RoleTool          Role = "tool"
	RoleCodeExecution Role = "code_execution"
)

// Visibility controls who sees a message. Only some classes are sent to the LLM.
type Visibility string

const (
	VisibilityAll              Visibility = "all"
	VisibilityUIOnly           Visibility = "ui_only"
	VisibilityLLMOnly          Visibility = "llm_only"
	VisibilityLLMOnlyEphemeral Visibility = "llm_only_ephemeral"
	VisibilitySystemOnly       Visibility = "system_only"
)

// SentToLLM reports whether messages of this visibility are part of the LLM context.
// Ephemeral messages additionally need to be whitelisted for the current cycle.
func (v Visibility) SentToLLM() bool {
	switch v {
	case VisibilityAll, VisibilityLLMOnly, VisibilityLLMOnlyEphemeral:
		return true
	default:
		return false
	}
}

// ToolCallRecord is a tool invocation requested by the assistant.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
	Error     string `json:"error,omitempty"`
}

// Branch is a conversation tail that was cut off by a restart.
type Branch struct {
	ArchivedAt time.Time `json:"archived_at"`
	Messages   []Message `json:"messages"`
}

// Message is one entry of the conversation log.
type Message struct {
	Key                string           `json:"key"`
	Role               Role             `json:"role"`
	Visibility         Visibility       `json:"visibility"`
	Agent              string           `json:"agent,omitempty"`
	Content            string           `json:"content,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	EngineState        *EngineState     `json:"engine_state,omitempty"`
	NewReasoningCycle  bool             `json:"new_reasoning_cycle,omitempty"`
	ToolCalls          []ToolCallRecord `json:"tool_calls,omitempty"`
	ToolCallKey        string           `json:"tool_call_key,omitempty"`
	ToolCallSuccess    *bool            `json:"tool_call_success,omitempty"`
	ToolCallLogs       string           `json:"tool_call_logs,omitempty"`
	ToolCallUserReport []ReportItem     `json:"tool_call_user_report,omitempty"`
	GeneratedCode      string           `json:"generated_code,omitempty"`
	PrivacyApproved    bool             `json:"privacy_approved,omitempty"`
	Branches           []Branch         `json:"branches,omitempty"`
}

// NewMessage returns a message with a fresh key and creation time.
func NewMessage(role Role, visibility Visibility, content string) Message {
	return Message{
		Key:        uuid.NewString(),
		Role:       role,
		Visibility: visibility,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

// HasToolCalls reports whether the assistant requested tools in this message.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// EngineState is the persisted state of the engine's state machine.
type EngineState struct {
	Agent             string       `json:"agent"`
	AgentSwitched     bool         `json:"agent_switched,omitempty"`
	ExecutingTool     string       `json:"executing_tool,omitempty"`
	ResponseKind      ResponseKind `json:"response_kind"`
	EpisodeID         string       `json:"episode_id,omitempty"`
	CompletedEpisodes []string     `json:"completed_episodes,omitempty"`
}

// Clone returns a copy that shares no slices with s.
func (s EngineState) Clone() EngineState {
	out := s
	if s.CompletedEpisodes != nil {
		out.CompletedEpisodes = append([]string(nil), s.CompletedEpisodes...)
	}
	return out
}

// Ptr returns a pointer to a copy of s, for message snapshots.
func (s EngineState) Ptr() *EngineState {
	c := s.Clone()
	return &c
}

// DefaultEngineState is the state of a session that has not reasoned yet.
func DefaultEngineState(agent string) EngineState {
	return EngineState{Agent: agent, ResponseKind: ResponseNotStarted}
}

// Params maps configured engine parameter names to values.
type Params map[string]any

// Clone is a shallow copy; values are treated as immutable.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Session is a persisted research conversation.
type Session struct {
	SessionKey       string      `json:"session_key"`
	FriendlyName     string      `json:"friendly_name"`
	EngineName       string      `json:"engine_name"`
	EngineParams     Params      `json:"engine_params"`
	Messages         []Message   `json:"messages"`
	EngineState      EngineState `json:"engine_state"`
	WorkingDirectory string      `json:"working_directory"`
	StartedAt        time.Time   `json:"started_at"`
}

// UserSettings are the per-installation preferences kept next to the sessions.
type UserSettings struct {
	ActiveSession string    `json:"active_session,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
