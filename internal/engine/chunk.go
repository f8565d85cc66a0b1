package engine

import "github.com/DrShushen/climb/internal/session"

// ChunkSentinel classifies a stream chunk.
type ChunkSentinel string

const (
	ChunkNotStarted  ChunkSentinel = "not_started"
	ChunkText        ChunkSentinel = "text"
	ChunkToolCall    ChunkSentinel = "tool_call"
	ChunkEndOfStream ChunkSentinel = "end_of_stream"
)

// ResponseKind maps the sentinel onto the persisted engine state tag.
func (s ChunkSentinel) ResponseKind() session.ResponseKind {
	return session.ResponseKind(s)
}

// ChunkTracker records the sentinel of every chunk in a stream and tells the
// consumer when the open segment has to be flushed into a message.
type ChunkTracker struct {
	chunks []ChunkSentinel
}

func NewChunkTracker() *ChunkTracker {
	return &ChunkTracker{chunks: []ChunkSentinel{ChunkNotStarted}}
}

// Update appends one classification.
func (t *ChunkTracker) Update(s ChunkSentinel) {
	t.chunks = append(t.chunks, s)
}

// ProcessingRequired looks only at the last two sentinels.
func (t *ChunkTracker) ProcessingRequired() bool {
	n := len(t.chunks)
	if t.chunks[n-1] == ChunkEndOfStream {
		return true
	}
	if n < 2 {
		return false
	}
	prev, last := t.chunks[n-2], t.chunks[n-1]
	// text -> tool_call: the text segment is complete.
	// tool_call -> text: the tool call segment is complete.
	return (prev == ChunkText && last == ChunkToolCall) || (prev == ChunkToolCall && last == ChunkText)
}

// Previous returns the sentinel before the most recent one.
func (t *ChunkTracker) Previous() ChunkSentinel {
	if len(t.chunks) < 2 {
		return ChunkNotStarted
	}
	return t.chunks[len(t.chunks)-2]
}

// History returns a copy of every recorded sentinel.
func (t *ChunkTracker) History() []ChunkSentinel {
	return append([]ChunkSentinel(nil), t.chunks...)
}
