package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/DrShushen/climb/internal/engine/protocol"
)

const eventBuffer = 256

// StdioServer serves a Session over newline-delimited JSON: commands are
// read from in and events written to out.
type StdioServer struct {
	scanner *bufio.Scanner
	writer  *bufio.Writer
	log     zerolog.Logger

	mu     sync.Mutex
	closed bool
	events chan protocol.Event
}

func NewStdioServer(in io.Reader, out io.Writer, log zerolog.Logger) *StdioServer {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &StdioServer{
		scanner: scanner,
		writer:  bufio.NewWriter(out),
		log:     log,
		events:  make(chan protocol.Event, eventBuffer),
	}
}

// Emit queues ev for writing. It blocks while the buffer is full and drops
// events once the server has stopped.
func (r *StdioServer) Emit(ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.log.Debug().Str("event", string(ev.GetType())).Msg("stdio: dropping event after shutdown")
		return
	}
	r.events <- ev
}

func (r *StdioServer) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	close(r.events)
}

// Serve handles commands until in is exhausted or ctx is done. Turns run
// in the background so that cancel_request is handled while they stream.
func (r *StdioServer) Serve(ctx context.Context, s *Session) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go r.flushEvents(errCh)

	var wg sync.WaitGroup
	for r.scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		r.handleLine(ctx, s, line, &wg)
	}
	if err := r.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		r.Emit(protocol.NewErrorEvent(s.id, fmt.Sprintf("stdin error: %v", err), "protocol_error", ""))
	}

	wg.Wait()
	r.close()
	return <-errCh
}

func (r *StdioServer) handleLine(ctx context.Context, s *Session, line string, wg *sync.WaitGroup) {
	cmd, err := protocol.DecodeCommand([]byte(line))
	if err != nil {
		r.Emit(protocol.NewErrorEvent(s.id, err.Error(), "invalid_command", truncate(line, 256)))
		return
	}

	background := func(run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				r.log.Warn().Err(err).Str("command", string(cmd.GetType())).Msg("stdio command failed")
				if errors.Is(err, ErrBusy) {
					r.Emit(protocol.NewErrorEvent(s.id, err.Error(), "busy", ""))
				}
			}
		}()
	}

	switch c := cmd.(type) {
	case protocol.UserMessageCommand:
		background(func(ctx context.Context) error { return s.Send(ctx, c.Message) })
	case protocol.ApproveCommand:
		background(s.Approve)
	case protocol.RestartCommand:
		background(func(ctx context.Context) error { return s.Restart(ctx, c.MessageKey) })
	case protocol.CancelRequestCommand:
		if err := s.Cancel(ctx, c.Reason); err != nil {
			r.Emit(protocol.NewErrorEvent(s.id, err.Error(), "cancel_error", ""))
		}
	case protocol.GetPlanCommand:
		s.EmitPlan()
	}
}

func (r *StdioServer) flushEvents(errCh chan<- error) {
	for ev := range r.events {
		if err := r.writeEvent(ev); err != nil {
			// Keep draining so emitters never block on a dead writer.
			for range r.events {
			}
			errCh <- err
			return
		}
	}
	errCh <- r.writer.Flush()
}

func (r *StdioServer) writeEvent(ev protocol.Event) error {
	payload, err := protocol.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return r.writer.Flush()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
