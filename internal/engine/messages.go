package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/DrShushen/climb/internal/session"
)

// AppendMessage adds msg to the history and persists the session.
func (e *Engine) AppendMessage(ctx context.Context, msg session.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sess.Messages = append(e.sess.Messages, msg)
	return e.saveLocked(ctx)
}

// Messages returns a copy of the message history.
func (e *Engine) Messages() []session.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]session.Message(nil), e.sess.Messages...)
}

// GetLastMessage returns the most recent message.
func (e *Engine) GetLastMessage() (session.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.sess.Messages) == 0 {
		return session.Message{}, ErrNoMessages
	}
	return e.sess.Messages[len(e.sess.Messages)-1], nil
}

// UpdateState copies the current engine state into the last message's
// snapshot, when it has one, and persists the session.
func (e *Engine) UpdateState(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n := len(e.sess.Messages); n > 0 && e.sess.Messages[n-1].EngineState != nil {
		e.sess.Messages[n-1].EngineState = e.sess.EngineState.Ptr()
	}
	return e.saveLocked(ctx)
}

// DiscardLast removes the most recent message.
func (e *Engine) DiscardLast(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.sess.Messages)
	if n == 0 {
		return ErrNoMessages
	}
	e.sess.Messages = e.sess.Messages[:n-1]
	return e.saveLocked(ctx)
}

// IngestUserInput records a user message sent from the UI.
func (e *Engine) IngestUserInput(ctx context.Context, content string) (session.Message, error) {
	msg := session.NewMessage(session.RoleUser, session.VisibilityAll, content)
	msg.Agent = e.State().Agent
	if err := e.AppendMessage(ctx, msg); err != nil {
		return session.Message{}, err
	}
	return msg, nil
}

// ApproveLastMessage marks the last message as reviewed by the user.
func (e *Engine) ApproveLastMessage(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.sess.Messages)
	if n == 0 {
		return ErrNoMessages
	}
	e.sess.Messages[n-1].PrivacyApproved = true
	return e.saveLocked(ctx)
}

// NeedsApproval reports whether Reason would refuse to run until the last
// message is approved. llm_only_ephemeral messages are engine-generated and
// never wait for approval.
func (e *Engine) NeedsApproval() bool {
	if e.PrivacyMode() != PrivacyGuardrailWithApproval {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.sess.Messages) - 1; i >= 0; i-- {
		m := e.sess.Messages[i]
		if m.Visibility == session.VisibilityLLMOnlyEphemeral {
			continue
		}
		return m.Visibility.SentToLLM() && !m.PrivacyApproved
	}
	return false
}

// dropEphemeralSince removes llm_only_ephemeral messages at index from or
// later and persists the session if anything was removed.
func (e *Engine) dropEphemeralSince(ctx context.Context, from int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if from >= len(e.sess.Messages) {
		return nil
	}
	kept := e.sess.Messages[:from]
	removed := false
	for _, m := range e.sess.Messages[from:] {
		if m.Visibility == session.VisibilityLLMOnlyEphemeral {
			removed = true
			continue
		}
		kept = append(kept, m)
	}
	if !removed {
		return nil
	}
	e.sess.Messages = kept
	return e.saveLocked(ctx)
}

// SendEphemeral lets an llm_only_ephemeral message through to the current
// cycle's LLM call. The whitelist resets at the start of every cycle.
func (e *Engine) SendEphemeral(key string) {
	e.ephemeral[key] = struct{}{}
}

func (e *Engine) ephemeralAllowed(key string) bool {
	_, ok := e.ephemeral[key]
	return ok
}

// FilterForLLM drops messages the LLM must not see this cycle.
func (e *Engine) FilterForLLM(msgs []session.Message) []session.Message {
	out := make([]session.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Visibility.SentToLLM() {
			continue
		}
		if m.Visibility == session.VisibilityLLMOnlyEphemeral && !e.ephemeralAllowed(m.Key) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// TruncateAtUserMessage cuts the history right after the user message with
// the given key. The removed tail is archived as a branch on that message,
// keeping at most Options.BranchLimit branches. The engine state is restored
// from the last remaining snapshot.
func (e *Engine) TruncateAtUserMessage(ctx context.Context, messageKey string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, m := range e.sess.Messages {
		if m.Key == messageKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	if e.sess.Messages[idx].Role != session.RoleUser {
		return false, fmt.Errorf("message %s is a %s message, not a user message", messageKey, e.sess.Messages[idx].Role)
	}

	tail := append([]session.Message(nil), e.sess.Messages[idx+1:]...)
	target := &e.sess.Messages[idx]
	if len(tail) > 0 {
		target.Branches = append(target.Branches, session.Branch{ArchivedAt: time.Now().UTC(), Messages: tail})
		if extra := len(target.Branches) - e.opts.BranchLimit; extra > 0 {
			target.Branches = target.Branches[extra:]
		}
	}
	e.sess.Messages = e.sess.Messages[:idx+1]

	for i := idx; i >= 0; i-- {
		if st := e.sess.Messages[i].EngineState; st != nil {
			e.sess.EngineState = st.Clone()
			break
		}
	}
	e.sess.EngineState.ExecutingTool = ""
	return true, e.saveLocked(ctx)
}

// CycleMessages returns the messages produced since the latest reasoning
// cycle began, including messages appended after the LLM output.
func (e *Engine) CycleMessages() []session.Message {
	msgs := e.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].NewReasoningCycle {
			return msgs[i:]
		}
	}
	return nil
}

// PendingToolCalls returns the tool calls of the latest cycle that have no
// tool or code_execution message answering them yet, in request order.
func (e *Engine) PendingToolCalls() []session.ToolCallRecord {
	answered := map[string]bool{}
	for _, m := range e.Messages() {
		if m.ToolCallKey != "" {
			answered[m.ToolCallKey] = true
		}
	}
	var pending []session.ToolCallRecord
	for _, m := range e.CycleMessages() {
		for _, c := range m.ToolCalls {
			if !answered[c.ID] {
				pending = append(pending, c)
			}
		}
	}
	return pending
}

// AnswerToolCall records a tool message for call without running a tool.
// Agents use it for calls they handle themselves.
func (e *Engine) AnswerToolCall(ctx context.Context, call session.ToolCallRecord, content string, success bool) error {
	msg := session.NewMessage(session.RoleTool, session.VisibilityAll, content)
	msg.Agent = e.State().Agent
	msg.ToolCallKey = call.ID
	msg.ToolCallSuccess = &success
	return e.AppendMessage(ctx, msg)
}
