package engine

import (
	"strings"
)

// EstimateTokens provides a rough token count: about four characters per
// token plus a little for whitespace-heavy text. Non-empty text counts at
// least one token.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	chars := len([]rune(text))
	whitespace := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")
	return max(chars/4+whitespace/6, 1)
}

// EstimateChatTokens estimates the prompt size of msgs, including role
// names, tool calls and a fixed per-message overhead.
func EstimateChatTokens(msgs []ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(string(m.Role)) + EstimateTokens(m.Content) + 4
		for _, c := range m.ToolCalls {
			total += EstimateTokens(c.Name) + EstimateTokens(c.Record().Arguments)
		}
	}
	return total
}
