package engine

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/DrShushen/climb/internal/session"
)

// ToolInput carries user-supplied values a tool asked for (e.g. an uploaded file path).
type ToolInput map[string]string

// ToolRun is the invocation handed to Tool.Execute.
type ToolRun struct {
	CallID           string
	Args             map[string]any
	WorkingDirectory string
	Input            ToolInput
}

// ToolResult is the final outcome of a tool run.
type ToolResult struct {
	Content    string // returned to the LLM
	Success    bool
	UserReport []session.ReportItem
	Logs       string
}

// ToolEvent is one item produced by a running tool: incremental output,
// the final result, or a terminal error.
type ToolEvent struct {
	Output string
	Result *ToolResult
	Err    error
}

// Tool is a long-running, cooperatively cancellable operation the LLM can call.
type Tool interface {
	Name() string
	Description() string
	SchemaJSON() string
	// Execute must stop yielding once ctx is done or StopExecution is called.
	Execute(ctx context.Context, run ToolRun) iter.Seq[ToolEvent]
	StopExecution()
}

// ToolValidationError indicates that tool arguments failed JSON schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

// ValidateToolArgs checks args against the tool's JSON schema.
func ValidateToolArgs(t Tool, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(t.SchemaJSON()),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return &ToolValidationError{ToolName: t.Name(), Errors: msgs}
}

type ToolRegistry map[string]Tool

// Names returns registered tool names in sorted order.
func (r ToolRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schemas returns the schemas for the named tools, skipping unknown names.
// A nil names slice selects every tool.
func (r ToolRegistry) Schemas(names []string) []ToolSchema {
	if names == nil {
		names = r.Names()
	}
	out := make([]ToolSchema, 0, len(names))
	for _, name := range names {
		t, ok := r[name]
		if !ok {
			continue
		}
		out = append(out, ToolSchema{Name: t.Name(), Description: t.Description(), JSONSchema: t.SchemaJSON()})
	}
	return out
}
