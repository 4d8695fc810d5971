package mfa

import "time"

// Audit event types appended to the audit log.
const (
	EventEnrollment          = "enrollment"
	EventVerificationSuccess = "verification_success"
	EventVerificationFailed  = "verification_failed"
	EventMFADisabled         = "mfa_disabled"
	EventSessionCreated      = "session_created"
	EventBackupCodeUsed      = "backup_code_used"
)

// User is an MFA enrollment record. The TOTP secret itself is never exposed
// through this type.
type User struct {
	ID             int64
	CreatedAt      time.Time
	LastUsedAt     *time.Time
	Active         bool
	FailedAttempts int
}

// Session is a time-limited authorization row granting bypass of repeated MFA
// prompts.
type Session struct {
	ID           string
	UserID       int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
}

// Expired reports whether the session TTL has passed at t. A nil session
// counts as expired.
func (s *Session) Expired(t time.Time) bool {
	return s == nil || !t.Before(s.ExpiresAt)
}

// Event is a single audit log entry.
type Event struct {
	ID        int64
	UserID    int64
	Type      string
	Timestamp time.Time
	Details   string
}
