package engine

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/DrShushen/climb/internal/session"
)

// StreamChunk is one item of a reasoning stream as seen by the UI.
type StreamChunk struct {
	Sentinel ChunkSentinel
	Text     string    // text delta
	ToolCall *ToolCall // complete tool call
	Usage    *Usage    // set on the end_of_stream chunk when reported
	// Flushed is the segment that was persisted right before this chunk.
	Flushed *session.Message
}

// StreamResponse consumes a provider stream on behalf of agent a. Whenever
// the stream switches between text and tool calls, and at its end, the open
// segment is persisted as an assistant message. A provider failure yields a
// *StreamError and the open segment is discarded.
func (e *Engine) StreamResponse(ctx context.Context, a *EngineAgent, open StreamOpener) iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		fail := func(err error) {
			serr := &StreamError{Agent: a.Type, Err: err}
			e.hooks.OnStreamError(ctx, e.sess, serr)
			yield(StreamChunk{}, serr)
		}

		opened, err := openStream(ctx, *e.opts.Retry, open, func(attempt int, delay time.Duration, err error) {
			e.hooks.OnRetryAttempt(ctx, e.sess, attempt, delay, err)
		})
		if err != nil {
			fail(err)
			return
		}

		seg := &segment{engine: e, agent: a, tracker: NewChunkTracker(), first: true}
		deliver := func(ev StreamEvent) bool {
			chunk, ok, err := seg.accept(ctx, ev)
			if err != nil {
				yield(StreamChunk{}, err)
				return false
			}
			if !ok {
				return true
			}
			return yield(chunk, nil)
		}

		if opened.first != nil && !deliver(*opened.first) {
			return
		}
		events, errs := opened.events, opened.errs
		for events != nil || errs != nil {
			select {
			case <-ctx.Done():
				fail(ctx.Err())
				return
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if !deliver(ev) {
					return
				}
			case err, ok := <-errs:
				if ok && err != nil {
					fail(err)
					return
				}
				errs = nil
			}
		}

		end, err := seg.finish(ctx)
		if err != nil {
			yield(StreamChunk{}, err)
			return
		}
		yield(end, nil)
	}
}

// segment accumulates the open part of a stream.
type segment struct {
	engine  *Engine
	agent   *EngineAgent
	tracker *ChunkTracker
	first   bool

	text  strings.Builder
	calls []ToolCall
	usage *Usage
}

func (s *segment) accept(ctx context.Context, ev StreamEvent) (StreamChunk, bool, error) {
	switch ev.Type {
	case EventTextDelta:
		s.tracker.Update(ChunkText)
		flushed, err := s.flushIfRequired(ctx)
		if err != nil {
			return StreamChunk{}, false, err
		}
		s.text.WriteString(ev.Text)
		return StreamChunk{Sentinel: ChunkText, Text: ev.Text, Flushed: flushed}, true, nil
	case EventToolCall:
		s.tracker.Update(ChunkToolCall)
		flushed, err := s.flushIfRequired(ctx)
		if err != nil {
			return StreamChunk{}, false, err
		}
		call := ev.ToolCall
		s.calls = append(s.calls, call)
		return StreamChunk{Sentinel: ChunkToolCall, ToolCall: &call, Flushed: flushed}, true, nil
	case EventUsage:
		u := ev.Usage
		s.usage = &u
	}
	return StreamChunk{}, false, nil
}

func (s *segment) finish(ctx context.Context) (StreamChunk, error) {
	s.tracker.Update(ChunkEndOfStream)
	flushed, err := s.flushIfRequired(ctx)
	if err != nil {
		return StreamChunk{}, err
	}
	return StreamChunk{Sentinel: ChunkEndOfStream, Usage: s.usage, Flushed: flushed}, nil
}

// flushIfRequired persists the segment that the latest sentinel closed.
func (s *segment) flushIfRequired(ctx context.Context) (*session.Message, error) {
	if !s.tracker.ProcessingRequired() {
		return nil, nil
	}
	switch s.tracker.Previous() {
	case ChunkText:
		return s.flushText(ctx)
	case ChunkToolCall:
		return s.flushToolCalls(ctx)
	}
	return nil, nil
}

func (s *segment) flushText(ctx context.Context) (*session.Message, error) {
	content := s.text.String()
	s.text.Reset()
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	msg := s.newMessage(content, session.ResponseText)
	return s.persist(ctx, msg)
}

func (s *segment) flushToolCalls(ctx context.Context) (*session.Message, error) {
	if len(s.calls) == 0 {
		return nil, nil
	}
	msg := s.newMessage("", session.ResponseToolCall)
	for _, c := range s.calls {
		msg.ToolCalls = append(msg.ToolCalls, c.Record())
	}
	s.calls = nil
	return s.persist(ctx, msg)
}

func (s *segment) newMessage(content string, kind session.ResponseKind) session.Message {
	msg := session.NewMessage(session.RoleAssistant, session.VisibilityAll, content)
	msg.Agent = s.agent.Type
	st := s.engine.State()
	st.ResponseKind = kind
	msg.EngineState = &st
	msg.NewReasoningCycle = s.first
	s.first = false
	return msg
}

func (s *segment) persist(ctx context.Context, msg session.Message) (*session.Message, error) {
	if err := s.engine.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.engine.hooks.OnSegmentFlushed(ctx, s.engine.sess, msg)
	return &msg, nil
}
