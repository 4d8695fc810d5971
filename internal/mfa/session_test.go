package mfa_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infraops/infrabot/internal/mfa"
	"github.com/infraops/infrabot/pkg/totp"
)

func newTestSessionManager(t *testing.T, ttl time.Duration) (*mfa.SessionManager, *mfa.Store) {
	t.Helper()
	store := newTestStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mfa.NewSessionManager(store, ttl, log), store
}

func enrollUser(t *testing.T, store *mfa.Store, userID int64) {
	t.Helper()
	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, store.Enroll(context.Background(), userID, secret, nil))
}

func TestSessionManager_Create(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, store := newTestSessionManager(t, time.Hour)
	enrollUser(t, store, 1)

	first, err := mgr.Create(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// A new session invalidates the prior one.
	second, err := mgr.Create(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = store.Session(ctx, first)
	assert.ErrorIs(t, err, mfa.ErrSessionNotFound)

	sess, err := store.Session(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sess.UserID)
}

func TestSessionManager_Valid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		t.Parallel()
		mgr, store := newTestSessionManager(t, time.Hour)
		enrollUser(t, store, 1)

		ok, err := mgr.Valid(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("live session", func(t *testing.T) {
		t.Parallel()
		mgr, store := newTestSessionManager(t, time.Hour)
		enrollUser(t, store, 1)

		_, err := mgr.Create(ctx, 1)
		require.NoError(t, err)

		ok, err := mgr.Valid(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expired session is rejected lazily", func(t *testing.T) {
		t.Parallel()
		mgr, store := newTestSessionManager(t, 30*time.Millisecond)
		enrollUser(t, store, 1)

		_, err := mgr.Create(ctx, 1)
		require.NoError(t, err)

		time.Sleep(50 * time.Millisecond)

		ok, err := mgr.Valid(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("row surviving a cache loss is picked up", func(t *testing.T) {
		t.Parallel()
		mgr, store := newTestSessionManager(t, time.Hour)
		enrollUser(t, store, 1)

		// Session created outside the manager, as after a restart.
		_, err := store.CreateSession(ctx, 1, time.Hour)
		require.NoError(t, err)

		ok, err := mgr.Valid(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestSessionManager_Invalidate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, store := newTestSessionManager(t, time.Hour)
	enrollUser(t, store, 1)

	_, err := mgr.Create(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, mgr.Invalidate(ctx, 1))

	ok, err := mgr.Valid(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.UserSession(ctx, 1)
	assert.ErrorIs(t, err, mfa.ErrSessionNotFound)
}

func TestSessionManager_Info(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mgr, store := newTestSessionManager(t, time.Hour)
	enrollUser(t, store, 1)

	_, err := mgr.Info(ctx, 1)
	assert.ErrorIs(t, err, mfa.ErrSessionNotFound)

	id, err := mgr.Create(ctx, 1)
	require.NoError(t, err)

	sess, err := mgr.Info(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), sess.ExpiresAt, 5*time.Second)
}

func TestSessionManager_Run(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr, store := newTestSessionManager(t, 20*time.Millisecond)
	enrollUser(t, store, 1)

	_, err := mgr.Create(ctx, 1)
	require.NoError(t, err)

	go mgr.Run(ctx, 30*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, err := store.UserSession(context.Background(), 1)
		return err != nil
	}, time.Second, 20*time.Millisecond)
}
