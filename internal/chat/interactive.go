package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/DrShushen/climb/internal/engine/protocol"
	"github.com/DrShushen/climb/internal/session"
)

// TextRenderer prints protocol events for a terminal.
type TextRenderer struct {
	mu      sync.Mutex
	w       io.Writer
	midLine bool
}

func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

// Emit renders ev. It is safe for concurrent use.
func (t *TextRenderer) Emit(ev protocol.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case protocol.AssistantTextEvent:
		if e.Final {
			t.endLine()
			return
		}
		if !t.midLine {
			fmt.Fprintf(t.w, "%s> ", e.Agent)
			t.midLine = true
		}
		fmt.Fprint(t.w, e.Content)
	case protocol.ToolEvent:
		t.endLine()
		if e.Phase == protocol.ToolPhaseStart {
			label := e.Description
			if label == "" {
				label = e.Tool
			}
			fmt.Fprintf(t.w, "[tool] %s...\n", label)
			return
		}
		status := "ok"
		if e.Success != nil && !*e.Success {
			status = "failed"
			if e.Details != "" {
				status += ": " + e.Details
			}
		}
		fmt.Fprintf(t.w, "[tool] %s %s\n", e.Tool, status)
	case protocol.ToolOutputEvent:
		t.endLine()
		for _, line := range strings.Split(strings.TrimRight(e.Output, "\n"), "\n") {
			fmt.Fprintf(t.w, "  | %s\n", line)
		}
	case protocol.StatusEvent:
		t.endLine()
		switch e.Status {
		case protocol.StatusAgentSwitched:
			fmt.Fprintf(t.w, "-- handing over: %s --\n", e.Detail)
		case protocol.StatusAwaitingApproval:
			fmt.Fprintln(t.w, "-- privacy mode: review the last message, then type /approve --")
		case protocol.StatusProjectCompleted:
			fmt.Fprintln(t.w, "-- all planned episodes are complete --")
		case protocol.StatusSessionReady:
			fmt.Fprintf(t.w, "-- engine %s ready --\n", e.Detail)
		default:
			fmt.Fprintf(t.w, "-- %s %s --\n", e.Status, e.Detail)
		}
	case protocol.ProjectPlanEvent:
		t.endLine()
		raw, err := json.MarshalIndent(e.Plan, "", "  ")
		if err != nil {
			return
		}
		fmt.Fprintf(t.w, "plan: %s\n", raw)
	case protocol.TokenUsageEvent:
		// Shown on demand with /tokens.
	case protocol.ErrorEvent:
		t.endLine()
		fmt.Fprintf(t.w, "error: %s\n", e.Message)
	case protocol.CancelledEvent:
		t.endLine()
		fmt.Fprintln(t.w, "-- cancelled --")
	case protocol.DoneEvent:
		t.endLine()
	}
}

func (t *TextRenderer) endLine() {
	if t.midLine {
		fmt.Fprintln(t.w)
		t.midLine = false
	}
}

const interactiveHelp = `Commands:
  /approve         approve the last message (privacy mode)
  /restart <key>   answer the user message <key> again
  /history         list user messages with their keys
  /plan            show plan progress
  /tokens          show token usage per agent
  /quit            leave the chat`

// RunInteractive reads user input line by line and runs a turn for each.
func RunInteractive(ctx context.Context, s *Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch cmd, arg, _ := strings.Cut(line, " "); cmd {
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, interactiveHelp)
		case "/approve":
			err = s.Approve(ctx)
		case "/restart":
			if arg == "" {
				fmt.Fprintln(out, "usage: /restart <message key>")
				continue
			}
			err = s.Restart(ctx, strings.TrimSpace(arg))
		case "/history":
			printHistory(out, s)
		case "/plan":
			s.EmitPlan()
		case "/tokens":
			for agent, n := range s.e.TokenCounts() {
				fmt.Fprintf(out, "%s: %d tokens\n", agent, n)
			}
		default:
			err = s.Send(ctx, line)
		}
		// Turn errors are rendered as error events.
		if errors.Is(err, ErrBusy) {
			fmt.Fprintln(out, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printHistory(out io.Writer, s *Session) {
	for _, m := range s.e.Messages() {
		if m.Role != session.RoleUser {
			continue
		}
		fmt.Fprintf(out, "%s  %s\n", m.Key, firstLine(m.Content, 60))
	}
}

func firstLine(s string, limit int) string {
	s, _, _ = strings.Cut(s, "\n")
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
