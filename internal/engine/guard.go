package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// TurnGuard serializes engine turns per session key, so two UI actions on
// the same session never drive one Engine concurrently.
type TurnGuard struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func NewTurnGuard() *TurnGuard {
	return &TurnGuard{sems: make(map[string]*semaphore.Weighted)}
}

func (g *TurnGuard) sem(key string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sems[key]
	if !ok {
		s = semaphore.NewWeighted(1)
		g.sems[key] = s
	}
	return s
}

// Acquire blocks until the session's turn is free or ctx is done.
func (g *TurnGuard) Acquire(ctx context.Context, key string) (release func(), err error) {
	s := g.sem(key)
	if err := s.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.Release(1) }, nil
}

// TryAcquire takes the session's turn only if it is free.
func (g *TurnGuard) TryAcquire(key string) (release func(), ok bool) {
	s := g.sem(key)
	if !s.TryAcquire(1) {
		return nil, false
	}
	return func() { s.Release(1) }, true
}
