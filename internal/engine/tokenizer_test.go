package engine

import (
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short word", text: "hello", want: 1},
		{name: "sentence", text: "hello world this is a test", want: 6},
		{name: "code snippet", text: "func main() { fmt.Println(\"hello\") }", want: 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateTokens(tt.text); got != tt.want {
				t.Errorf("EstimateTokens() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateChatTokens(t *testing.T) {
	tests := []struct {
		name     string
		messages []ChatMessage
		minWant  int
	}{
		{
			name:     "single message",
			messages: []ChatMessage{{Role: RoleUser, Content: "hello"}},
			// role 1 + content 1 + overhead 4
			minWant: 6,
		},
		{
			name: "with tool calls",
			messages: []ChatMessage{{
				Role:      RoleAssistant,
				Content:   "calling tool",
				ToolCalls: []ToolCall{{Name: "list_files", Args: map[string]any{"key": "val"}}},
			}},
			minWant: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateChatTokens(tt.messages); got < tt.minWant {
				t.Errorf("EstimateChatTokens() = %v, want >= %v", got, tt.minWant)
			}
		})
	}
}
