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

type verifierFixture struct {
	store    *mfa.Store
	sessions *mfa.SessionManager
	verifier *mfa.Verifier
	secret   string
}

func newVerifierFixture(t *testing.T, userID int64, backupCodes []string) *verifierFixture {
	t.Helper()

	store := newTestStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := mfa.NewSessionManager(store, 15*time.Minute, log)

	secret, err := totp.GenerateSecret()
	require.NoError(t, err)

	var hashes []string
	for _, c := range backupCodes {
		h, err := totp.HashBackupCode(c)
		require.NoError(t, err)
		hashes = append(hashes, h)
	}
	require.NoError(t, store.Enroll(context.Background(), userID, secret, hashes))

	return &verifierFixture{
		store:    store,
		sessions: sessions,
		verifier: mfa.NewVerifier(store, sessions, log),
		secret:   secret,
	}
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("valid TOTP code issues a session", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, nil)

		code, err := totp.Code(fx.secret)
		require.NoError(t, err)

		res, err := fx.verifier.Verify(ctx, 1, code)
		require.NoError(t, err)
		assert.NotEmpty(t, res.SessionID)
		assert.False(t, res.UsedBackupCode)

		ok, err := fx.sessions.Valid(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)

		info, err := fx.store.UserInfo(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, info.LastUsedAt)
	})

	t.Run("not enrolled", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, nil)

		_, err := fx.verifier.Verify(ctx, 999, "123456")
		assert.ErrorIs(t, err, mfa.ErrNotEnrolled)
	})

	t.Run("wrong code counts down attempts", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, nil)

		_, err := fx.verifier.Verify(ctx, 1, "000000")
		var codeErr *mfa.CodeError
		require.ErrorAs(t, err, &codeErr)
		assert.ErrorIs(t, err, mfa.ErrInvalidCode)
		assert.Equal(t, 4, codeErr.AttemptsLeft)
	})

	t.Run("malformed input is a plain mismatch", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, nil)

		_, err := fx.verifier.Verify(ctx, 1, "not-a-code")
		assert.ErrorIs(t, err, mfa.ErrInvalidCode)
	})

	t.Run("rate limit engages after five failures", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, nil)

		for i := 0; i < 5; i++ {
			_, err := fx.verifier.Verify(ctx, 1, "000000")
			assert.ErrorIs(t, err, mfa.ErrInvalidCode)
		}

		code, err := totp.Code(fx.secret)
		require.NoError(t, err)

		// Even the right code is refused while limited.
		_, err = fx.verifier.Verify(ctx, 1, code)
		assert.ErrorIs(t, err, mfa.ErrRateLimited)
	})

	t.Run("success resets the failure counter", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, nil)

		_, err := fx.verifier.Verify(ctx, 1, "000000")
		assert.ErrorIs(t, err, mfa.ErrInvalidCode)

		code, err := totp.Code(fx.secret)
		require.NoError(t, err)
		_, err = fx.verifier.Verify(ctx, 1, code)
		require.NoError(t, err)

		info, err := fx.store.UserInfo(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, info.FailedAttempts)
	})

	t.Run("backup code works once", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, []string{"1234-5678"})

		res, err := fx.verifier.Verify(ctx, 1, "1234-5678")
		require.NoError(t, err)
		assert.True(t, res.UsedBackupCode)

		_, err = fx.verifier.Verify(ctx, 1, "1234-5678")
		assert.ErrorIs(t, err, mfa.ErrInvalidCode)
	})

	t.Run("new verification replaces the old session", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, nil)

		code, err := totp.Code(fx.secret)
		require.NoError(t, err)

		first, err := fx.verifier.Verify(ctx, 1, code)
		require.NoError(t, err)
		second, err := fx.verifier.Verify(ctx, 1, code)
		require.NoError(t, err)

		assert.NotEqual(t, first.SessionID, second.SessionID)
		_, err = fx.store.Session(ctx, first.SessionID)
		assert.ErrorIs(t, err, mfa.ErrSessionNotFound)
	})

	t.Run("transitions are audited", func(t *testing.T) {
		t.Parallel()
		fx := newVerifierFixture(t, 1, nil)

		_, err := fx.verifier.Verify(ctx, 1, "000000")
		assert.ErrorIs(t, err, mfa.ErrInvalidCode)

		code, err := totp.Code(fx.secret)
		require.NoError(t, err)
		_, err = fx.verifier.Verify(ctx, 1, code)
		require.NoError(t, err)

		events, err := fx.store.Events(ctx, 1, 20)
		require.NoError(t, err)

		types := make([]string, len(events))
		for i, e := range events {
			types[i] = e.Type
		}
		assert.Contains(t, types, mfa.EventVerificationFailed)
		assert.Contains(t, types, mfa.EventVerificationSuccess)
		assert.Contains(t, types, mfa.EventSessionCreated)
	})
}
