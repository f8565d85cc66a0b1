package providers

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/engine"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicClient implements engine.LLMClient over the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	log    zerolog.Logger
}

// NewAnthropicClient creates a new Anthropic client for the engine.
func NewAnthropicClient(apiKey string, log zerolog.Logger, opts ...anthropic.ClientOption) *AnthropicClient {
	return &AnthropicClient{client: anthropic.NewClient(apiKey, opts...), log: log}
}

// toAnthropicMessages splits out the system prompt and merges consecutive
// turns of the same role, since the API expects user and assistant turns
// to alternate.
func toAnthropicMessages(messages []engine.ChatMessage) ([]anthropic.MessageSystemPart, []anthropic.Message) {
	var system []anthropic.MessageSystemPart
	var out []anthropic.Message

	appendTurn := func(role anthropic.ChatRole, content ...anthropic.MessageContent) {
		if len(content) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, content...)
			return
		}
		out = append(out, anthropic.Message{Role: role, Content: content})
	}

	for _, msg := range pairedMessages(messages) {
		switch msg.Role {
		case engine.RoleSystem:
			system = append(system, anthropic.MessageSystemPart{Type: "text", Text: msg.Content})
		case engine.RoleUser:
			if msg.Content == "" {
				continue
			}
			appendTurn(anthropic.RoleUser, anthropic.NewTextMessageContent(msg.Content))
		case engine.RoleAssistant:
			var content []anthropic.MessageContent
			if msg.Content != "" && msg.Content != " " {
				content = append(content, anthropic.NewTextMessageContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Name, json.RawMessage(argsJSON(tc.Args))))
			}
			appendTurn(anthropic.RoleAssistant, content...)
		case engine.RoleTool:
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			appendTurn(anthropic.RoleUser, anthropic.NewToolResultMessageContent(msg.Name, content, false))
		}
	}
	return system, out
}

func decodeToolInput(input json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return map[string]any{}
		}
	}
	return args
}

// Stream implements engine.LLMClient. The SDK streams through callbacks,
// which are adapted to channels here.
func (c *AnthropicClient) Stream(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
	eventCh := make(chan engine.StreamEvent, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(eventCh)

		schemas, err := schemaObjects(toolSchemas)
		if err != nil {
			errCh <- err
			return
		}
		system, anthropicMsgs := toAnthropicMessages(messages)

		maxTokens := defaultAnthropicMaxTokens
		if opts.MaxOutputTokens > 0 {
			maxTokens = opts.MaxOutputTokens
		}
		temperature := opts.Temperature

		req := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:       anthropic.Model(model),
				Messages:    anthropicMsgs,
				MaxTokens:   maxTokens,
				Temperature: &temperature,
			},
		}
		if len(system) > 0 {
			req.MultiSystem = system
		}
		for i, ts := range toolSchemas {
			req.Tools = append(req.Tools, anthropic.ToolDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				InputSchema: schemas[i],
			})
		}

		req.OnError = func(errResp anthropic.ErrorResponse) {
			trySendErr(errCh, wrapError(fmt.Errorf("anthropic streaming error: %s: %s", errResp.Type, errResp.Error.Message)))
		}
		req.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				send(ctx, eventCh, engine.StreamEvent{Type: engine.EventTextDelta, Text: *delta.Delta.Text})
			}
		}
		req.OnContentBlockStop = func(_ anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			if content.Type != "tool_use" || content.MessageContentToolUse == nil {
				return
			}
			tu := content.MessageContentToolUse
			send(ctx, eventCh, engine.StreamEvent{
				Type:     engine.EventToolCall,
				ToolCall: engine.ToolCall{ID: tu.ID, Name: tu.Name, Args: decodeToolInput(tu.Input)},
			})
		}

		resp, err := c.client.CreateMessagesStream(ctx, req)
		if err != nil {
			c.log.Debug().Err(err).Str("model", model).Msg("anthropic stream failed")
			trySendErr(errCh, wrapError(err))
			return
		}
		if resp.StopReason == "max_tokens" {
			c.log.Warn().Str("model", model).Int("max_tokens", maxTokens).Msg("response truncated at output token limit")
		}
		if resp.Usage.InputTokens > 0 {
			send(ctx, eventCh, engine.StreamEvent{
				Type: engine.EventUsage,
				Usage: engine.Usage{
					Prompt:     resp.Usage.InputTokens,
					Completion: resp.Usage.OutputTokens,
					Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
				},
			})
		}
	}()

	return eventCh, errCh
}
