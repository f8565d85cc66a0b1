package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DrShushen/climb/internal/session"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFilename replaces every character that is not safe in a file name.
func SafeFilename(s string) string {
	return unsafeFilenameChars.ReplaceAllString(s, "_")
}

type cycleLog struct {
	Engine   string          `yaml:"engine"`
	Agent    string          `yaml:"agent"`
	LoggedAt time.Time       `yaml:"logged_at"`
	Tools    []string        `yaml:"tools,omitempty"`
	Messages []cycleLogEntry `yaml:"messages"`
}

type cycleLogEntry struct {
	Key         string   `yaml:"key"`
	Role        string   `yaml:"role"`
	Visibility  string   `yaml:"visibility"`
	Content     string   `yaml:"content,omitempty"`
	ToolCalls   []string `yaml:"tool_calls,omitempty"`
	ToolCallKey string   `yaml:"tool_call_key,omitempty"`
}

// logCycle writes the messages about to be sent to the LLM into
// logs/<last message key>.yaml in the working directory.
func (e *Engine) logCycle(a *EngineAgent, msgs []session.Message, schemas []ToolSchema) error {
	if e.logsPath == "" {
		return nil
	}
	last, err := e.GetLastMessage()
	if err != nil {
		return nil
	}
	entry := cycleLog{Engine: e.Name(), Agent: a.Type, LoggedAt: time.Now().UTC()}
	for _, s := range schemas {
		entry.Tools = append(entry.Tools, s.Name)
	}
	for _, m := range msgs {
		le := cycleLogEntry{
			Key:         m.Key,
			Role:        string(m.Role),
			Visibility:  string(m.Visibility),
			Content:     m.Content,
			ToolCallKey: m.ToolCallKey,
		}
		for _, c := range m.ToolCalls {
			le.ToolCalls = append(le.ToolCalls, fmt.Sprintf("%s(%s)", c.Name, c.Arguments))
		}
		entry.Messages = append(entry.Messages, le)
	}
	data, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	path := filepath.Join(e.logsPath, SafeFilename(last.Key+".yaml"))
	return os.WriteFile(path, data, 0o644)
}
