package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"slices"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"
	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/engine"
)

// OpenAIClient implements engine.LLMClient over the OpenAI chat completions
// API. The same client serves Azure OpenAI deployments.
type OpenAIClient struct {
	client *openai.Client
	log    zerolog.Logger
}

// NewOpenAIClient creates a client for api.openai.com, or for an
// OpenAI-compatible server when baseURL is set.
func NewOpenAIClient(apiKey, baseURL string, log zerolog.Logger) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config), log: log}
}

// AzureOptions locates an Azure OpenAI deployment.
type AzureOptions struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// NewAzureOpenAIClient creates a client for an Azure OpenAI deployment.
// Every model name is routed to opts.Deployment.
func NewAzureOpenAIClient(opts AzureOptions, log zerolog.Logger) *OpenAIClient {
	config := openai.DefaultAzureConfig(opts.APIKey, opts.Endpoint)
	if opts.APIVersion != "" {
		config.APIVersion = opts.APIVersion
	}
	if opts.Deployment != "" {
		deployment := opts.Deployment
		config.AzureModelMapperFunc = func(string) string { return deployment }
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config), log: log}
}

func toOpenAIMessages(messages []engine.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range pairedMessages(messages) {
		switch msg.Role {
		case engine.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case engine.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		case engine.RoleAssistant:
			// The SDK serializes "" as null, which the API rejects next to tool calls.
			content := msg.Content
			if content == "" {
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, tc := range msg.ToolCalls {
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:       tc.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: tc.Name, Arguments: argsJSON(tc.Args)},
				})
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content, ToolCalls: toolCalls})
		case engine.RoleTool:
			content := msg.Content
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, ToolCallID: msg.Name, Content: content})
		}
	}
	return out
}

// toolCallAccumulator assembles tool calls from per-field deltas. OpenAI
// always sends the index; the id and name arrive on the first delta.
type toolCallAccumulator struct {
	calls map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: map[int]*pendingCall{}}
}

func (a *toolCallAccumulator) add(delta openai.ToolCall) {
	idx := len(a.calls)
	if delta.Index != nil {
		idx = *delta.Index
	} else if delta.ID != "" {
		for i, pc := range a.calls {
			if pc.id == delta.ID {
				idx = i
			}
		}
	}
	pc, ok := a.calls[idx]
	if !ok {
		pc = &pendingCall{}
		a.calls[idx] = pc
	}
	if delta.ID != "" {
		pc.id = delta.ID
	}
	if delta.Function.Name != "" {
		pc.name = delta.Function.Name
	}
	pc.args.WriteString(delta.Function.Arguments)
}

// finish returns the calls in index order. Arguments that fail to parse
// are reported through ToolCall.Error rather than dropped.
func (a *toolCallAccumulator) finish() []engine.ToolCall {
	idxs := make([]int, 0, len(a.calls))
	for i := range a.calls {
		idxs = append(idxs, i)
	}
	slices.Sort(idxs)

	out := make([]engine.ToolCall, 0, len(idxs))
	for _, i := range idxs {
		pc := a.calls[i]
		if pc.name == "" {
			continue
		}
		tc := engine.ToolCall{ID: pc.id, Name: pc.name, Args: map[string]any{}}
		raw := strings.TrimSpace(pc.args.String())
		switch {
		case raw == "":
		case json.Unmarshal([]byte(raw), &tc.Args) != nil:
			tc.Args = map[string]any{}
			if !strings.HasSuffix(raw, "}") {
				tc.Error = "Stream ended prematurely; arguments incomplete. This usually indicates the output token limit is too low."
			} else {
				tc.Error = "Invalid JSON in arguments. Please check syntax and retry."
			}
		}
		out = append(out, tc)
	}
	return out
}

// Stream implements engine.LLMClient.
func (c *OpenAIClient) Stream(ctx context.Context, model string, messages []engine.ChatMessage, toolSchemas []engine.ToolSchema, opts engine.ChatOptions) (<-chan engine.StreamEvent, <-chan error) {
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
		req := openai.ChatCompletionRequest{
			Model:         model,
			Messages:      toOpenAIMessages(messages),
			Stream:        true,
			StreamOptions: &openai.StreamOptions{IncludeUsage: true},
		}
		for i, ts := range toolSchemas {
			req.Tools = append(req.Tools, openai.Tool{
				Type:     openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{Name: ts.Name, Description: ts.Description, Parameters: schemas[i]},
			})
		}
		if len(req.Tools) > 0 {
			req.ToolChoice = "auto"
		}
		if opts.MaxOutputTokens > 0 {
			req.MaxTokens = opts.MaxOutputTokens
		}
		temperature := opts.Temperature
		req.Temperature = &temperature

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errCh <- wrapError(err)
			return
		}
		defer stream.Close()

		acc := newToolCallAccumulator()
		var usage engine.Usage
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				errCh <- wrapError(err)
				return
			}
			if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
				usage = engine.Usage{
					Prompt:     resp.Usage.PromptTokens,
					Completion: resp.Usage.CompletionTokens,
					Total:      resp.Usage.TotalTokens,
				}
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				if !send(ctx, eventCh, engine.StreamEvent{Type: engine.EventTextDelta, Text: delta.Content}) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				acc.add(tc)
			}
		}

		for _, tc := range acc.finish() {
			if tc.Error != "" {
				c.log.Warn().Str("tool", tc.Name).Str("id", tc.ID).Msg(tc.Error)
			}
			if !send(ctx, eventCh, engine.StreamEvent{Type: engine.EventToolCall, ToolCall: tc}) {
				return
			}
		}
		if usage.Total > 0 {
			send(ctx, eventCh, engine.StreamEvent{Type: engine.EventUsage, Usage: usage})
		}
	}()

	return eventCh, errCh
}
