package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/DrShushen/climb/internal/session"
)

// ExecuteCodeTool is the tool that runs code generated by the assistant.
const ExecuteCodeTool = "execute_code"

// ExecuteToolCall starts the tool requested by call. The returned sequence
// streams the tool's events; once it ends, a tool message carrying the
// result is appended and the session persisted. Failures of the tool itself
// arrive as a terminal ToolEvent wrapping a *ToolExecutionError.
//
// Only one tool may execute at a time: a second call returns ErrToolInFlight.
func (e *Engine) ExecuteToolCall(ctx context.Context, call session.ToolCallRecord, input ToolInput) (iter.Seq[ToolEvent], error) {
	return e.startTool(ctx, call, input, session.RoleTool)
}

// ExecuteGeneratedCode runs the code attached to the most recent message
// that carries generated code and records the output as a code_execution
// message.
func (e *Engine) ExecuteGeneratedCode(ctx context.Context) (iter.Seq[ToolEvent], error) {
	var code, key string
	for _, m := range e.Messages() {
		if m.GeneratedCode != "" {
			code, key = m.GeneratedCode, m.Key
		}
	}
	if code == "" {
		return nil, errors.New("no generated code to execute")
	}
	call := ToolCall{ID: key, Name: ExecuteCodeTool, Args: map[string]any{"code": code}}
	return e.startTool(ctx, call.Record(), nil, session.RoleCodeExecution)
}

func (e *Engine) startTool(ctx context.Context, call session.ToolCallRecord, input ToolInput, role session.Role) (iter.Seq[ToolEvent], error) {
	e.toolMu.Lock()
	if e.executingTool != nil {
		e.toolMu.Unlock()
		return nil, ErrToolInFlight
	}

	tool, ok := e.opts.Tools[call.Name]
	if !ok {
		e.toolMu.Unlock()
		return e.failedTool(ctx, call, role, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)), nil
	}
	args := ToolCallFromRecord(call).Args
	if err := ValidateToolArgs(tool, args); err != nil {
		e.toolMu.Unlock()
		return e.failedTool(ctx, call, role, err), nil
	}

	e.executingTool = tool
	e.toolMu.Unlock()

	if err := e.setExecutingTool(ctx, call.Name); err != nil {
		e.clearExecutingTool(tool)
		return nil, err
	}
	e.hooks.OnToolStart(ctx, e.sess, call)

	run := ToolRun{CallID: call.ID, Args: args, WorkingDirectory: e.WorkingDirectoryAbs(), Input: input}
	return func(yield func(ToolEvent) bool) {
		var (
			result  *ToolResult
			toolErr error
			output  []byte
		)
		defer func() {
			e.finishTool(ctx, tool, call, role, result, toolErr, string(output))
		}()

		for ev := range tool.Execute(ctx, run) {
			switch {
			case ev.Err != nil:
				toolErr = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: ev.Err}
				yield(ToolEvent{Err: toolErr})
				return
			case ev.Result != nil:
				result = ev.Result
			case ev.Output != "":
				output = append(output, ev.Output...)
				e.hooks.OnToolOutput(ctx, e.sess, call.Name, ev.Output)
			}
			if !yield(ev) {
				return
			}
		}
	}, nil
}

// failedTool records a tool message for a call that could not start.
func (e *Engine) failedTool(ctx context.Context, call session.ToolCallRecord, role session.Role, cause error) iter.Seq[ToolEvent] {
	return func(yield func(ToolEvent) bool) {
		err := &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: cause}
		if appendErr := e.appendToolMessage(ctx, call, role, nil, err, ""); appendErr != nil {
			e.log.Error().Err(appendErr).Str("tool", call.Name).Msg("record failed tool call")
		}
		e.hooks.OnToolDone(ctx, e.sess, call, err)
		yield(ToolEvent{Err: err})
	}
}

// finishTool clears the in-flight bookkeeping regardless of outcome and
// records the tool message.
func (e *Engine) finishTool(ctx context.Context, tool Tool, call session.ToolCallRecord, role session.Role, result *ToolResult, toolErr error, output string) {
	stopped := !e.clearExecutingTool(tool)
	if result == nil && toolErr == nil {
		if stopped {
			toolErr = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: context.Canceled}
		} else {
			toolErr = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: errors.New("tool finished without a result")}
		}
	}
	if err := e.appendToolMessage(ctx, call, role, result, toolErr, output); err != nil {
		e.log.Error().Err(err).Str("tool", call.Name).Msg("record tool result")
	}
	e.hooks.OnToolDone(ctx, e.sess, call, toolErr)
}

func (e *Engine) appendToolMessage(ctx context.Context, call session.ToolCallRecord, role session.Role, result *ToolResult, toolErr error, output string) error {
	msg := session.NewMessage(role, session.VisibilityAll, "")
	msg.Agent = e.State().Agent
	msg.ToolCallKey = call.ID
	success := toolErr == nil && result != nil && result.Success
	msg.ToolCallSuccess = &success
	switch {
	case result != nil:
		msg.Content = result.Content
		msg.ToolCallUserReport = result.UserReport
		msg.ToolCallLogs = result.Logs
	case toolErr != nil:
		msg.Content = fmt.Sprintf("Tool %s failed: %v", call.Name, toolErr)
		msg.ToolCallLogs = output
	}
	if msg.ToolCallLogs == "" {
		msg.ToolCallLogs = output
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.EngineState.ExecutingTool = ""
	e.sess.Messages = append(e.sess.Messages, msg)
	return e.saveLocked(ctx)
}

func (e *Engine) setExecutingTool(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.EngineState.ExecutingTool = name
	return e.saveLocked(ctx)
}

// clearExecutingTool releases the slot if tool still holds it and reports
// whether it did. It returns false after StopToolExecution.
func (e *Engine) clearExecutingTool(tool Tool) bool {
	e.toolMu.Lock()
	defer e.toolMu.Unlock()
	if e.executingTool != tool {
		return false
	}
	e.executingTool = nil
	return true
}

// ExecutingTool returns the tool currently running, if any.
func (e *Engine) ExecutingTool() (Tool, bool) {
	e.toolMu.Lock()
	defer e.toolMu.Unlock()
	return e.executingTool, e.executingTool != nil
}

// StopToolExecution asks the running tool to stop and clears the in-flight
// state. It is safe to call from any goroutine and is a no-op when nothing
// is executing.
func (e *Engine) StopToolExecution(ctx context.Context) error {
	e.toolMu.Lock()
	tool := e.executingTool
	if tool == nil {
		e.toolMu.Unlock()
		e.log.Info().Msg("no active tool execution to terminate")
		return nil
	}
	e.executingTool = nil
	e.toolMu.Unlock()

	tool.StopExecution()
	e.log.Info().Str("tool", tool.Name()).Msg("tool execution terminated")

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.EngineState.ExecutingTool = ""
	return e.saveLocked(ctx)
}
