package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/session"
)

func TestRunTurnStopsAtText(t *testing.T) {
	v := &fakeVariant{scripts: []script{{events: []StreamEvent{text("Hi "), text("there.")}}}}
	e, _ := newTestEngine(t, v, nil)

	var chunks []StreamChunk
	outcome, err := e.RunTurn(context.Background(), 0, func(c StreamChunk) { chunks = append(chunks, c) })
	require.NoError(t, err)

	assert.Equal(t, TurnAwaitingUser, outcome)
	assert.Equal(t, 1, v.calls)
	assert.NotEmpty(t, chunks)
	last, err := e.GetLastMessage()
	require.NoError(t, err)
	assert.Equal(t, "Hi there.", last.Content)
}

func TestRunTurnContinuesAfterToolResult(t *testing.T) {
	v := &fakeVariant{scripts: []script{
		{events: []StreamEvent{toolCall("c1", "missing_tool")}},
		{events: []StreamEvent{text("That tool does not exist.")}},
	}}
	e, _ := newTestEngine(t, v, nil)

	outcome, err := e.RunTurn(context.Background(), 0, nil)
	require.NoError(t, err)

	assert.Equal(t, TurnAwaitingUser, outcome)
	assert.Equal(t, 2, v.calls)
	assert.Empty(t, e.PendingToolCalls())

	var toolMsg *session.Message
	for _, m := range e.Messages() {
		if m.Role == session.RoleTool {
			toolMsg = &m
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "c1", toolMsg.ToolCallKey)
	require.NotNil(t, toolMsg.ToolCallSuccess)
	assert.False(t, *toolMsg.ToolCallSuccess)
}

func TestRunTurnFollowsAgentSwitch(t *testing.T) {
	v := &fakeVariant{scripts: []script{
		{events: []StreamEvent{text("SWITCH to the coordinator")}},
		{events: []StreamEvent{text("Coordinator here.")}},
	}}
	e, _ := newTestEngine(t, v, nil)

	outcome, err := e.RunTurn(context.Background(), 0, nil)
	require.NoError(t, err)

	assert.Equal(t, TurnAwaitingUser, outcome)
	assert.Equal(t, 2, v.calls)
	assert.Equal(t, AgentCoordinator, e.State().Agent)
	assert.False(t, e.State().AgentSwitched)
}

func TestRunTurnCycleLimit(t *testing.T) {
	v := &fakeVariant{scripts: []script{
		{events: []StreamEvent{toolCall("c1", "missing_tool")}},
		{events: []StreamEvent{toolCall("c2", "missing_tool")}},
	}}
	e, _ := newTestEngine(t, v, nil)

	_, err := e.RunTurn(context.Background(), 2, nil)
	require.ErrorIs(t, err, ErrCycleLimit)
	assert.Equal(t, 2, v.calls)
}

func TestRunTurnCancelled(t *testing.T) {
	v := &fakeVariant{}
	e, _ := newTestEngine(t, v, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.RunTurn(ctx, 0, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, v.calls)
}

func TestTurnOutcomeString(t *testing.T) {
	assert.Equal(t, "awaiting_user", TurnAwaitingUser.String())
	assert.Equal(t, "awaiting_approval", TurnAwaitingApproval.String())
	assert.Equal(t, "project_completed", TurnProjectCompleted.String())
}
