package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/DrShushen/climb/internal/engine"
)

// pairedMessages places each tool result directly after the assistant
// message that requested it, as both OpenAI and Anthropic require. Calls
// without a result and results without a call are dropped.
func pairedMessages(messages []engine.ChatMessage) []engine.ChatMessage {
	results := map[string]engine.ChatMessage{}
	for _, m := range messages {
		if m.Role != engine.RoleTool {
			continue
		}
		if _, dup := results[m.Name]; !dup {
			results[m.Name] = m
		}
	}

	used := map[string]bool{}
	out := make([]engine.ChatMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case engine.RoleTool:
			continue
		case engine.RoleAssistant:
			var calls []engine.ToolCall
			var answers []engine.ChatMessage
			for _, tc := range m.ToolCalls {
				r, ok := results[tc.ID]
				if !ok || used[tc.ID] {
					continue
				}
				used[tc.ID] = true
				calls = append(calls, tc)
				answers = append(answers, r)
			}
			m.ToolCalls = calls
			if m.Content == "" && len(calls) == 0 {
				continue
			}
			out = append(out, m)
			out = append(out, answers...)
		default:
			out = append(out, m)
		}
	}
	return out
}

// schemaObjects decodes each tool's raw JSON schema.
func schemaObjects(toolSchemas []engine.ToolSchema) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(toolSchemas))
	for _, ts := range toolSchemas {
		var obj map[string]any
		if err := json.Unmarshal([]byte(ts.JSONSchema), &obj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		out = append(out, obj)
	}
	return out, nil
}

func argsJSON(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// send delivers ev unless ctx ends first.
func send(ctx context.Context, ch chan<- engine.StreamEvent, ev engine.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// trySendErr records the first terminal error; errCh has capacity one.
func trySendErr(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
	}
}
