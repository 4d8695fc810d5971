package mfa_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/infraops/infrabot/internal/mfa"
	"github.com/infraops/infrabot/pkg/totp"
)

var testKey = []byte("test-master-key")

func newTestStore(t *testing.T) *mfa.Store {
	t.Helper()
	store, _ := newTestStoreAt(t)
	return store
}

func newTestStoreAt(t *testing.T) (*mfa.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mfa.db")
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := mfa.OpenStore(path, testKey, log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

// backdateLastFailure rewrites last_failed_attempt directly in the database,
// simulating time passing since the last failed attempt.
func backdateLastFailure(t *testing.T, path string, userID int64, to time.Time) {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	defer db.Close()

	res, err := db.Exec(`UPDATE users_mfa SET last_failed_attempt = ? WHERE user_id = ?`,
		to.UTC().Format(time.RFC3339Nano), userID)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestStore_Enroll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)

	t.Run("round trips the secret", func(t *testing.T) {
		require.NoError(t, store.Enroll(ctx, 100, secret, nil))

		got, err := store.Secret(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, secret, got)
	})

	t.Run("marks the user enrolled", func(t *testing.T) {
		enrolled, err := store.IsEnrolled(ctx, 100)
		require.NoError(t, err)
		assert.True(t, enrolled)

		enrolled, err = store.IsEnrolled(ctx, 999)
		require.NoError(t, err)
		assert.False(t, enrolled)
	})

	t.Run("re-enrollment resets the failure counter", func(t *testing.T) {
		_, err := store.IncrementFailedAttempts(ctx, 100)
		require.NoError(t, err)

		require.NoError(t, store.Enroll(ctx, 100, secret, nil))

		info, err := store.UserInfo(ctx, 100)
		require.NoError(t, err)
		assert.Zero(t, info.FailedAttempts)
	})
}

func TestStore_Secret(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	t.Run("unknown user", func(t *testing.T) {
		_, err := store.Secret(ctx, 42)
		assert.ErrorIs(t, err, mfa.ErrNotEnrolled)
	})

	t.Run("disabled user", func(t *testing.T) {
		secret, err := totp.GenerateSecret()
		require.NoError(t, err)
		require.NoError(t, store.Enroll(ctx, 42, secret, nil))
		require.NoError(t, store.Disable(ctx, 42))

		_, err = store.Secret(ctx, 42)
		assert.ErrorIs(t, err, mfa.ErrNotEnrolled)
	})
}

func TestStore_Disable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, store.Enroll(ctx, 7, secret, nil))

	id, err := store.CreateSession(ctx, 7, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.Disable(ctx, 7))

	enrolled, err := store.IsEnrolled(ctx, 7)
	require.NoError(t, err)
	assert.False(t, enrolled)

	_, err = store.Session(ctx, id)
	assert.ErrorIs(t, err, mfa.ErrSessionNotFound)

	// The record survives soft deletion.
	info, err := store.UserInfo(ctx, 7)
	require.NoError(t, err)
	assert.False(t, info.Active)
}

func TestStore_ConsumeBackupCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	codes, err := totp.GenerateBackupCodes(3)
	require.NoError(t, err)

	hashes := make([]string, len(codes))
	for i, c := range codes {
		h, err := totp.HashBackupCode(c)
		require.NoError(t, err)
		hashes[i] = h
	}
	require.NoError(t, store.Enroll(ctx, 5, secret, hashes))

	t.Run("valid code is single use", func(t *testing.T) {
		ok, err := store.ConsumeBackupCode(ctx, 5, codes[1])
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.ConsumeBackupCode(ctx, 5, codes[1])
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("other codes remain usable", func(t *testing.T) {
		ok, err := store.ConsumeBackupCode(ctx, 5, codes[0])
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("wrong code", func(t *testing.T) {
		ok, err := store.ConsumeBackupCode(ctx, 5, "0000-0000")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("user without codes", func(t *testing.T) {
		require.NoError(t, store.Enroll(ctx, 6, secret, nil))
		ok, err := store.ConsumeBackupCode(ctx, 6, codes[2])
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStore_Sessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, store.Enroll(ctx, 1, secret, nil))

	t.Run("create and load", func(t *testing.T) {
		id, err := store.CreateSession(ctx, 1, time.Hour)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		sess, err := store.Session(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), sess.UserID)
		assert.WithinDuration(t, sess.CreatedAt.Add(time.Hour), sess.ExpiresAt, time.Second)
		assert.False(t, sess.Expired(time.Now().UTC()))
	})

	t.Run("newest non-expired wins", func(t *testing.T) {
		require.NoError(t, store.DeleteUserSessions(ctx, 1))

		_, err := store.CreateSession(ctx, 1, -time.Minute)
		require.NoError(t, err)
		fresh, err := store.CreateSession(ctx, 1, time.Hour)
		require.NoError(t, err)

		got, err := store.UserSession(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, fresh, got)
	})

	t.Run("expired rows are swept", func(t *testing.T) {
		require.NoError(t, store.DeleteUserSessions(ctx, 1))

		_, err := store.CreateSession(ctx, 1, -time.Minute)
		require.NoError(t, err)
		_, err = store.CreateSession(ctx, 1, -time.Second)
		require.NoError(t, err)

		count, err := store.DeleteExpiredSessions(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)

		_, err = store.UserSession(ctx, 1)
		assert.ErrorIs(t, err, mfa.ErrSessionNotFound)
	})

	t.Run("delete missing session is a no-op", func(t *testing.T) {
		assert.NoError(t, store.DeleteSession(ctx, "no-such-session"))
	})

	t.Run("nil session counts as expired", func(t *testing.T) {
		var sess *mfa.Session
		assert.True(t, sess.Expired(time.Now().UTC()))
	})
}

func TestStore_RateLimiting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, path := newTestStoreAt(t)

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, store.Enroll(ctx, 9, secret, nil))

	t.Run("below the cap", func(t *testing.T) {
		for i := 1; i <= 4; i++ {
			count, err := store.IncrementFailedAttempts(ctx, 9)
			require.NoError(t, err)
			assert.Equal(t, i, count)
		}

		limited, err := store.IsRateLimited(ctx, 9)
		require.NoError(t, err)
		assert.False(t, limited)
	})

	t.Run("at the cap", func(t *testing.T) {
		_, err := store.IncrementFailedAttempts(ctx, 9)
		require.NoError(t, err)

		limited, err := store.IsRateLimited(ctx, 9)
		require.NoError(t, err)
		assert.True(t, limited)
	})

	t.Run("reset clears the limit", func(t *testing.T) {
		require.NoError(t, store.ResetFailedAttempts(ctx, 9))

		limited, err := store.IsRateLimited(ctx, 9)
		require.NoError(t, err)
		assert.False(t, limited)
	})

	t.Run("elapsed window lifts the limit and resets the counter", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			_, err := store.IncrementFailedAttempts(ctx, 9)
			require.NoError(t, err)
		}
		limited, err := store.IsRateLimited(ctx, 9)
		require.NoError(t, err)
		require.True(t, limited)

		backdateLastFailure(t, path, 9, time.Now().Add(-16*time.Minute))

		limited, err = store.IsRateLimited(ctx, 9)
		require.NoError(t, err)
		assert.False(t, limited)

		info, err := store.UserInfo(ctx, 9)
		require.NoError(t, err)
		assert.Zero(t, info.FailedAttempts)
	})

	t.Run("unknown user is never limited", func(t *testing.T) {
		limited, err := store.IsRateLimited(ctx, 12345)
		require.NoError(t, err)
		assert.False(t, limited)
	})
}

func TestStore_AuditLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, store.Enroll(ctx, 3, secret, nil))
	require.NoError(t, store.LogEvent(ctx, 3, mfa.EventVerificationSuccess, map[string]any{"session_id": "abc"}))

	events, err := store.Events(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, events, 2) // enrollment + explicit entry

	assert.Equal(t, mfa.EventVerificationSuccess, events[0].Type)
	assert.Contains(t, events[0].Details, "abc")
	assert.Equal(t, mfa.EventEnrollment, events[1].Type)
	assert.False(t, events[0].Timestamp.IsZero())
}
