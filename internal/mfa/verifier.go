package mfa

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/infraops/infrabot/pkg/totp"
)

var backupCodePattern = regexp.MustCompile(`^\d{4}-\d{4}$`)

// VerifyResult reports a successful verification.
type VerifyResult struct {
	SessionID      string
	UsedBackupCode bool
}

// Verifier runs the verification state machine: enrollment check, rate limit,
// TOTP or backup-code match, then session issuance.
type Verifier struct {
	store    *Store
	sessions *SessionManager
	log      *slog.Logger
}

// NewVerifier wires a verifier over the store and session manager.
func NewVerifier(store *Store, sessions *SessionManager, log *slog.Logger) *Verifier {
	return &Verifier{store: store, sessions: sessions, log: log}
}

// Verify checks a submitted code for the user and, on success, issues a
// session. Failures return ErrNotEnrolled, ErrRateLimited, or a *CodeError
// carrying the attempts left before the rate limit engages.
func (v *Verifier) Verify(ctx context.Context, userID int64, code string) (*VerifyResult, error) {
	enrolled, err := v.store.IsEnrolled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	limited, err := v.store.IsRateLimited(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limited {
		v.log.Warn("verification rejected by rate limit", "user_id", userID)
		return nil, ErrRateLimited
	}

	code = strings.TrimSpace(code)

	matched, usedBackup, err := v.match(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if !matched {
		count, err := v.store.IncrementFailedAttempts(ctx, userID)
		if err != nil {
			return nil, err
		}
		v.store.logEvent(ctx, userID, EventVerificationFailed, map[string]any{"attempt": count})

		left := maxFailedAttempts - count
		if left < 0 {
			left = 0
		}
		return nil, &CodeError{AttemptsLeft: left}
	}

	if err := v.store.ResetFailedAttempts(ctx, userID); err != nil {
		return nil, err
	}
	if err := v.store.TouchLastUsed(ctx, userID); err != nil {
		return nil, err
	}

	sessionID, err := v.sessions.Create(ctx, userID)
	if err != nil {
		return nil, err
	}

	v.store.logEvent(ctx, userID, EventVerificationSuccess, map[string]any{
		"session_id":  sessionID,
		"backup_code": usedBackup,
	})
	v.log.Info("MFA verification succeeded", "user_id", userID, "backup_code", usedBackup)

	return &VerifyResult{SessionID: sessionID, UsedBackupCode: usedBackup}, nil
}

// match tries the TOTP window first, then the backup codes for inputs shaped
// like one.
func (v *Verifier) match(ctx context.Context, userID int64, code string) (matched, usedBackup bool, err error) {
	if backupCodePattern.MatchString(code) {
		ok, err := v.store.ConsumeBackupCode(ctx, userID, code)
		if err != nil {
			return false, false, err
		}
		return ok, ok, nil
	}

	secret, err := v.store.Secret(ctx, userID)
	if err != nil {
		return false, false, err
	}
	ok, err := totp.Verify(secret, code)
	if err != nil {
		// Malformed input counts as a plain mismatch.
		return false, false, nil
	}
	return ok, false, nil
}
