package sqlitestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrShushen/climb/internal/session"
	"github.com/DrShushen/climb/internal/session/sqlitestore"
)

func openStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(context.Background(), filepath.Join(t.TempDir(), "climb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SessionRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)
	now := time.Now().UTC()

	sess := &session.Session{
		SessionKey:   "k1",
		EngineName:   "openai_v1",
		EngineParams: session.Params{"privacy_mode": "guardrail"},
		EngineState:  session.EngineState{Agent: "worker", ResponseKind: session.ResponseText},
		Messages:     []session.Message{session.NewMessage(session.RoleUser, session.VisibilityAll, "hello")},
		StartedAt:    now,
	}
	require.NoError(t, store.UpdateSession(ctx, sess))

	sess.Messages = append(sess.Messages, session.NewMessage(session.RoleAssistant, session.VisibilityAll, "hi"))
	require.NoError(t, store.UpdateSession(ctx, sess))

	got, err := store.GetSession(ctx, "k1")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, "guardrail", got.EngineParams["privacy_mode"])
	assert.Equal(t, session.ResponseText, got.EngineState.ResponseKind)

	require.NoError(t, store.UpdateSession(ctx, &session.Session{SessionKey: "k0", StartedAt: now.Add(-time.Minute)}))
	all, err := store.GetAllSessions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "k1", all[0].SessionKey)

	require.NoError(t, store.DeleteSession(ctx, "k1"))
	_, err = store.GetSession(ctx, "k1")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestStore_UserSettings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openStore(t)

	settings, err := store.GetUserSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings.ActiveSession)

	require.NoError(t, store.UpdateUserSettings(ctx, &session.UserSettings{ActiveSession: "k9"}))
	settings, err = store.GetUserSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k9", settings.ActiveSession)
}
