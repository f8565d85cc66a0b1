package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// NewSessionOptions describes a session to create.
type NewSessionOptions struct {
	Name         string
	EngineName   string
	EngineParams Params
	// SessionsDir is the parent of every session's working directory.
	SessionsDir string
}

// CreateNewSession stores an empty session with its own working directory.
// Engine construction later seeds the first messages.
func CreateNewSession(ctx context.Context, store Store, opts NewSessionOptions) (*Session, error) {
	if opts.EngineName == "" {
		return nil, errors.New("session.CreateNewSession: engine name is required")
	}
	key := uuid.NewString()
	now := time.Now().UTC()

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("Session %s", now.Format("2006-01-02 15:04"))
	}
	params := Params{}
	for k, v := range opts.EngineParams {
		params[k] = v
	}

	wd := filepath.Join(opts.SessionsDir, key)
	if err := os.MkdirAll(wd, 0755); err != nil {
		return nil, fmt.Errorf("session.CreateNewSession: create working directory: %w", err)
	}

	sess := &Session{
		SessionKey:       key,
		FriendlyName:     name,
		EngineName:       opts.EngineName,
		EngineParams:     params,
		Messages:         []Message{},
		EngineState:      EngineState{ResponseKind: ResponseNotStarted},
		WorkingDirectory: wd,
		StartedAt:        now,
	}
	if err := store.UpdateSession(ctx, sess); err != nil {
		_ = os.RemoveAll(wd)
		return nil, fmt.Errorf("session.CreateNewSession: %w", err)
	}
	return sess, nil
}

// DeleteSessions removes each session's working directory together with its
// store entry. When the active session is among them, the active session is
// reset to the newest remaining one (or none).
func DeleteSessions(ctx context.Context, store Store, keys []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, key := range keys {
		g.Go(func() error {
			return deleteSession(gctx, store, key)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	settings, err := store.GetUserSettings(ctx)
	if err != nil {
		return fmt.Errorf("session.DeleteSessions: %w", err)
	}
	deletedActive := false
	for _, key := range keys {
		if key == settings.ActiveSession {
			deletedActive = true
			break
		}
	}
	if !deletedActive {
		return nil
	}

	remaining, err := store.GetAllSessions(ctx)
	if err != nil {
		return fmt.Errorf("session.DeleteSessions: %w", err)
	}
	settings.ActiveSession = ""
	if len(remaining) > 0 {
		settings.ActiveSession = remaining[0].SessionKey
	}
	settings.UpdatedAt = time.Now().UTC()
	return store.UpdateUserSettings(ctx, settings)
}

func deleteSession(ctx context.Context, store Store, key string) error {
	sess, err := store.GetSession(ctx, key)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("session.DeleteSessions(%q): %w", key, err)
	}
	if sess.WorkingDirectory != "" {
		if err := os.RemoveAll(sess.WorkingDirectory); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("session.DeleteSessions(%q): remove working directory: %w", key, err)
		}
	}
	if err := store.DeleteSession(ctx, key); err != nil {
		return fmt.Errorf("session.DeleteSessions(%q): %w", key, err)
	}
	return nil
}

// SetActiveSession records key as the active session.
func SetActiveSession(ctx context.Context, store Store, key string) error {
	if _, err := store.GetSession(ctx, key); err != nil {
		return err
	}
	settings, err := store.GetUserSettings(ctx)
	if err != nil {
		return err
	}
	settings.ActiveSession = key
	settings.UpdatedAt = time.Now().UTC()
	return store.UpdateUserSettings(ctx, settings)
}
