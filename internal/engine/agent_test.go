package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/session"
)

func TestChatHistory(t *testing.T) {
	call := session.ToolCallRecord{ID: "c1", Name: "list_files", Arguments: `{"path":"."}`}
	asked := session.NewMessage(session.RoleAssistant, session.VisibilityAll, "Let me look.")
	asked.ToolCalls = []session.ToolCallRecord{call}
	answer := session.NewMessage(session.RoleTool, session.VisibilityAll, "data.csv")
	answer.ToolCallKey = "c1"

	got, err := ChatHistory("be brief", []session.Message{
		session.NewMessage(session.RoleUser, session.VisibilityAll, "hi"),
		asked,
		answer,
		session.NewMessage(session.RoleCodeExecution, session.VisibilityAll, "42"),
	})

	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, ChatMessage{Role: RoleSystem, Content: "be brief"}, got[0])
	assert.Equal(t, RoleUser, got[1].Role)
	require.Len(t, got[2].ToolCalls, 1)
	assert.Equal(t, "c1", got[2].ToolCalls[0].ID)
	assert.Equal(t, ChatMessage{Role: RoleTool, Name: "c1", Content: "data.csv"}, got[3])
	assert.Equal(t, "Code execution output:\n42", got[4].Content)
}

func TestChatHistoryRejectsInvalidMessages(t *testing.T) {
	orphan := session.NewMessage(session.RoleTool, session.VisibilityAll, "result")
	unnamed := session.NewMessage(session.RoleAssistant, session.VisibilityAll, "")
	unnamed.ToolCalls = []session.ToolCallRecord{{ID: "c1", Arguments: "{}"}}

	tests := []struct {
		name    string
		msg     session.Message
		wantErr string
	}{
		{name: "tool result without call ID", msg: orphan, wantErr: "no call ID"},
		{name: "tool call without name", msg: unnamed, wantErr: "needs both an ID and a name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ChatHistory("", []session.Message{tt.msg})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), tt.msg.Key)
		})
	}
}

func TestChatMessageValidate(t *testing.T) {
	tests := []struct {
		name  string
		msg   ChatMessage
		valid bool
	}{
		{name: "user", msg: ChatMessage{Role: RoleUser, Content: "hi"}, valid: true},
		{name: "tool with call ID", msg: ChatMessage{Role: RoleTool, Name: "c1"}, valid: true},
		{name: "unknown role", msg: ChatMessage{Role: "narrator"}},
		{name: "tool without call ID", msg: ChatMessage{Role: RoleTool}},
		{name: "call without ID", msg: ChatMessage{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "list_files"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
