package session_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/session"
)

func TestCreateNewSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	dir := t.TempDir()

	sess, err := session.CreateNewSession(ctx, store, session.NewSessionOptions{
		Name:         "study",
		EngineName:   "openai_v1",
		EngineParams: session.Params{"temperature": 1.0},
		SessionsDir:  dir,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sess.SessionKey)
	assert.Equal(t, "study", sess.FriendlyName)
	assert.Empty(t, sess.Messages)
	assert.Equal(t, session.ResponseNotStarted, sess.EngineState.ResponseKind)
	assert.DirExists(t, sess.WorkingDirectory)

	stored, err := store.GetSession(ctx, sess.SessionKey)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.EngineParams["temperature"])

	_, err = session.CreateNewSession(ctx, store, session.NewSessionOptions{SessionsDir: dir})
	require.Error(t, err)
}

func TestDeleteSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := session.NewMemoryStore()
	dir := t.TempDir()

	newSession := func() *session.Session {
		s, err := session.CreateNewSession(ctx, store, session.NewSessionOptions{EngineName: "openai_v1", SessionsDir: dir})
		require.NoError(t, err)
		return s
	}
	a, b, c := newSession(), newSession(), newSession()
	require.NoError(t, session.SetActiveSession(ctx, store, b.SessionKey))

	t.Run("inactive session keeps active pointer", func(t *testing.T) {
		require.NoError(t, session.DeleteSessions(ctx, store, []string{a.SessionKey}))
		assert.NoDirExists(t, a.WorkingDirectory)
		_, err := store.GetSession(ctx, a.SessionKey)
		assert.ErrorIs(t, err, session.ErrSessionNotFound)

		settings, err := store.GetUserSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, b.SessionKey, settings.ActiveSession)
	})

	t.Run("active session resets to remaining", func(t *testing.T) {
		require.NoError(t, os.RemoveAll(b.WorkingDirectory))
		require.NoError(t, session.DeleteSessions(ctx, store, []string{b.SessionKey}))

		settings, err := store.GetUserSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, c.SessionKey, settings.ActiveSession)
	})

	t.Run("last session clears active pointer", func(t *testing.T) {
		require.NoError(t, session.DeleteSessions(ctx, store, []string{c.SessionKey, "unknown"}))

		settings, err := store.GetUserSettings(ctx)
		require.NoError(t, err)
		assert.Empty(t, settings.ActiveSession)
	})
}
