package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/engine"
)

func intPtr(i int) *int { return &i }

func TestPairedMessagesDropsUnansweredHalves(t *testing.T) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "sys"},
		{Role: engine.RoleUser, Content: "hi"},
		{Role: engine.RoleAssistant, ToolCalls: []engine.ToolCall{{ID: "a", Name: "list_files"}, {ID: "b", Name: "read_file_head"}}},
		{Role: engine.RoleTool, Name: "a", Content: "{}"},
		{Role: engine.RoleAssistant, ToolCalls: []engine.ToolCall{{ID: "c", Name: "execute_code"}}},
		{Role: engine.RoleTool, Name: "orphan", Content: "{}"},
		{Role: engine.RoleAssistant, Content: "done"},
	}

	got := pairedMessages(msgs)

	require.Len(t, got, 5)
	assert.Equal(t, engine.RoleAssistant, got[2].Role)
	require.Len(t, got[2].ToolCalls, 1)
	assert.Equal(t, "a", got[2].ToolCalls[0].ID)
	assert.Equal(t, "a", got[3].Name)
	assert.Equal(t, "done", got[4].Content)
}

func TestPairedMessagesMovesResultsNextToCalls(t *testing.T) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleAssistant, ToolCalls: []engine.ToolCall{{ID: "a", Name: "list_files"}}},
		{Role: engine.RoleAssistant, Content: "While that runs..."},
		{Role: engine.RoleTool, Name: "a", Content: "{}"},
	}

	got := pairedMessages(msgs)

	require.Len(t, got, 3)
	assert.Equal(t, engine.RoleAssistant, got[0].Role)
	assert.Equal(t, engine.RoleTool, got[1].Role)
	assert.Equal(t, "While that runs...", got[2].Content)
}

func TestToolCallAccumulator(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.add(openai.ToolCall{Index: intPtr(1), ID: "call_2", Function: openai.FunctionCall{Name: "execute_code", Arguments: `{"code":`}})
	acc.add(openai.ToolCall{Index: intPtr(0), ID: "call_1", Function: openai.FunctionCall{Name: "list_files", Arguments: `{"path"`}})
	acc.add(openai.ToolCall{Index: intPtr(0), Function: openai.FunctionCall{Arguments: `: "."}`}})
	acc.add(openai.ToolCall{Index: intPtr(1), Function: openai.FunctionCall{Arguments: `"print(1)"}`}})
	acc.add(openai.ToolCall{Index: intPtr(2), ID: "call_3", Function: openai.FunctionCall{Name: "read_file_head", Arguments: `{"path": "x.csv"`}})

	calls := acc.finish()

	require.Len(t, calls, 3)
	assert.Equal(t, engine.ToolCall{ID: "call_1", Name: "list_files", Args: map[string]any{"path": "."}}, calls[0])
	assert.Equal(t, engine.ToolCall{ID: "call_2", Name: "execute_code", Args: map[string]any{"code": "print(1)"}}, calls[1])
	assert.Equal(t, "call_3", calls[2].ID)
	assert.Contains(t, calls[2].Error, "Stream ended prematurely")
	assert.Empty(t, calls[2].Args)
}

func TestToolCallAccumulatorInvalidJSON(t *testing.T) {
	acc := newToolCallAccumulator()
	acc.add(openai.ToolCall{Index: intPtr(0), ID: "x", Function: openai.FunctionCall{Name: "list_files", Arguments: `{path: .}`}})

	calls := acc.finish()

	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Error, "Invalid JSON")
}

func TestExtractErrorMetadata(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		retryAfter string
	}{
		{"nil", nil, 0, ""},
		{"api error", &openai.APIError{HTTPStatusCode: 503, Message: "down"}, 503, ""},
		{"wrapped request error", fmt.Errorf("call: %w", &openai.RequestError{HTTPStatusCode: 401, Err: errors.New("nope")}), 401, ""},
		{"anthropic type", errors.New("anthropic streaming error: overloaded_error: busy"), 529, ""},
		{"status text", errors.New("Too Many Requests, retry-after: 12"), 429, "12"},
		{"plain", errors.New("something odd"), 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, retryAfter := extractErrorMetadata(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.retryAfter, retryAfter)
		})
	}
}

func TestWrapErrorClassifies(t *testing.T) {
	err := wrapError(&openai.APIError{HTTPStatusCode: 429, Message: "slow down"})

	var engErr *engine.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.True(t, engErr.IsRateLimit)
	assert.Equal(t, engine.RetryClassRetryable, engErr.Class)
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "sys"},
		{Role: engine.RoleAssistant, ToolCalls: []engine.ToolCall{{ID: "a", Name: "list_files", Args: map[string]any{"path": "."}}}},
		{Role: engine.RoleTool, Name: "a"},
	}

	got := toOpenAIMessages(msgs)

	require.Len(t, got, 3)
	assert.Equal(t, " ", got[1].Content)
	require.Len(t, got[1].ToolCalls, 1)
	assert.Equal(t, `{"path":"."}`, got[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "a", got[2].ToolCallID)
	assert.Equal(t, "{}", got[2].Content)
}

func TestToAnthropicMessagesMergesTurns(t *testing.T) {
	msgs := []engine.ChatMessage{
		{Role: engine.RoleSystem, Content: "sys"},
		{Role: engine.RoleUser, Content: "hi"},
		{Role: engine.RoleAssistant, Content: "let me look"},
		{Role: engine.RoleAssistant, ToolCalls: []engine.ToolCall{{ID: "a", Name: "list_files"}}},
		{Role: engine.RoleTool, Name: "a", Content: `{"files":[]}`},
		{Role: engine.RoleUser, Content: "thanks"},
	}

	system, got := toAnthropicMessages(msgs)

	require.Len(t, system, 1)
	assert.Equal(t, "sys", system[0].Text)
	require.Len(t, got, 3)
	assert.Equal(t, anthropic.RoleUser, got[0].Role)
	assert.Equal(t, anthropic.RoleAssistant, got[1].Role)
	assert.Len(t, got[1].Content, 2)
	assert.Equal(t, anthropic.RoleUser, got[2].Role)
	assert.Len(t, got[2].Content, 2)
}

func TestDecodeToolInput(t *testing.T) {
	assert.Equal(t, map[string]any{"n_lines": float64(5)}, decodeToolInput([]byte(`{"n_lines":5}`)))
	assert.Empty(t, decodeToolInput([]byte(`not json`)))
	assert.Empty(t, decodeToolInput(nil))
}

func sseServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = io.WriteString(w, "data: "+c+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, events <-chan engine.StreamEvent, errs <-chan error) ([]engine.StreamEvent, error) {
	t.Helper()
	var got []engine.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}
	var err error
	for e := range errs {
		err = e
	}
	return got, err
}

func TestOpenAIStream(t *testing.T) {
	srv := sseServer(t,
		`{"id":"1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"id":"1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
		`{"id":"1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"list_files","arguments":"{\"path\":"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\".\"}"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","model":"m","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
	)
	client := NewOpenAIClient("key", srv.URL+"/v1", zerolog.Nop())

	events, errs := client.Stream(context.Background(), "m", []engine.ChatMessage{{Role: engine.RoleUser, Content: "hi"}}, nil, engine.ChatOptions{Temperature: 0.5})
	got, err := collect(t, events, errs)

	require.NoError(t, err)
	var text strings.Builder
	var calls []engine.ToolCall
	var usage engine.Usage
	for _, ev := range got {
		switch ev.Type {
		case engine.EventTextDelta:
			text.WriteString(ev.Text)
		case engine.EventToolCall:
			calls = append(calls, ev.ToolCall)
		case engine.EventUsage:
			usage = ev.Usage
		}
	}
	assert.Equal(t, "Hello", text.String())
	require.Len(t, calls, 1)
	assert.Equal(t, engine.ToolCall{ID: "call_1", Name: "list_files", Args: map[string]any{"path": "."}}, calls[0])
	assert.Equal(t, engine.Usage{Prompt: 10, Completion: 5, Total: 15}, usage)
}

func TestOpenAIStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()
	client := NewOpenAIClient("key", srv.URL+"/v1", zerolog.Nop())

	events, errs := client.Stream(context.Background(), "m", []engine.ChatMessage{{Role: engine.RoleUser, Content: "hi"}}, nil, engine.ChatOptions{})
	got, err := collect(t, events, errs)

	assert.Empty(t, got)
	var engErr *engine.EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, http.StatusTooManyRequests, engErr.HTTPStatus)
}

func TestOpenAIStreamBadSchema(t *testing.T) {
	client := NewOpenAIClient("key", "http://127.0.0.1:0/v1", zerolog.Nop())

	events, errs := client.Stream(context.Background(), "m", nil, []engine.ToolSchema{{Name: "bad", JSONSchema: "{"}}, engine.ChatOptions{})
	_, err := collect(t, events, errs)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tool schema JSON for bad")
}
