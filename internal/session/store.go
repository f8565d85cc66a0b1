package session

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when no session is stored under a key.
var ErrSessionNotFound = errors.New("session: not found")

// Store persists sessions and user settings. Writes are atomic per document;
// there are no transactions and the last writer wins.
type Store interface {
	GetSession(ctx context.Context, key string) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, key string) error
	// GetAllSessions returns sessions newest first.
	GetAllSessions(ctx context.Context) ([]*Session, error)
	GetUserSettings(ctx context.Context) (*UserSettings, error)
	UpdateUserSettings(ctx context.Context, settings *UserSettings) error
}
