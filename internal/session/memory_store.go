package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Sessions are cloned on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	settings UserSettings
	updates  int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) GetSession(_ context.Context, key string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session.MemoryStore.GetSession(%q): %w", key, ErrSessionNotFound)
	}
	return Clone(sess)
}

func (m *MemoryStore) UpdateSession(_ context.Context, s *Session) error {
	c, err := Clone(s)
	if err != nil {
		return fmt.Errorf("session.MemoryStore.UpdateSession(%q): %w", s.SessionKey, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionKey] = c
	m.updates++
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *MemoryStore) GetAllSessions(_ context.Context) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		c, err := Clone(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionKey < out[j].SessionKey
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetUserSettings(_ context.Context) (*UserSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.settings
	return &s, nil
}

func (m *MemoryStore) UpdateUserSettings(_ context.Context, settings *UserSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = *settings
	return nil
}

// Updates returns how many times UpdateSession has been called.
func (m *MemoryStore) Updates() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates
}
