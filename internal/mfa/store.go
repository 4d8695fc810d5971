package mfa

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/infraops/infrabot/pkg/totp"
)

const (
	maxFailedAttempts = 5
	rateLimitWindow   = 15 * time.Minute
)

// Store persists MFA enrollments, sessions, failure counters, and the audit
// log in SQLite. TOTP secrets are AES-256-GCM encrypted before they touch disk.
type Store struct {
	db  *sql.DB
	key []byte
	log *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS users_mfa (
	user_id             INTEGER PRIMARY KEY,
	totp_secret         TEXT NOT NULL,
	created_at          TEXT NOT NULL,
	last_used_at        TEXT,
	is_active           INTEGER NOT NULL DEFAULT 1,
	backup_codes        TEXT,
	failed_attempts     INTEGER NOT NULL DEFAULT 0,
	last_failed_attempt TEXT
);

CREATE TABLE IF NOT EXISTS mfa_sessions (
	session_id    TEXT PRIMARY KEY,
	user_id       INTEGER NOT NULL REFERENCES users_mfa(user_id),
	created_at    TEXT NOT NULL,
	expires_at    TEXT NOT NULL,
	last_activity TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mfa_audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	details    TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON mfa_sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON mfa_sessions(expires_at);
CREATE INDEX IF NOT EXISTS idx_audit_user_timestamp ON mfa_audit_log(user_id, timestamp);
`

// OpenStore opens (creating if needed) the SQLite database at path. The
// masterKey is run through PBKDF2 to derive the secret encryption key.
// Expired sessions left over from a previous run are swept on open.
func OpenStore(path string, masterKey []byte, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mfa: create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("mfa: open database: %w", err)
	}
	// SQLite allows a single writer; serializing through one connection avoids
	// SQLITE_BUSY under concurrent handler callbacks.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("mfa: init schema: %w", err)
	}

	s := &Store{db: db, key: totp.DeriveKey(masterKey), log: log}
	if _, err := s.DeleteExpiredSessions(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func now() time.Time { return time.Now().UTC() }

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(v string) (time.Time, error) { return time.Parse(timeLayout, v) }

// --- Enrollment ---

// Enroll registers (or re-registers) a user. The plaintext secret is encrypted
// before storage; backupHashes are bcrypt hashes of single-use codes. Any
// existing row is replaced and the failure counter reset.
func (s *Store) Enroll(ctx context.Context, userID int64, secret string, backupHashes []string) error {
	encrypted, err := totp.Encrypt(secret, s.key)
	if err != nil {
		return err
	}

	var codes any
	if len(backupHashes) > 0 {
		raw, err := json.Marshal(backupHashes)
		if err != nil {
			return fmt.Errorf("mfa: marshal backup codes: %w", err)
		}
		codes = string(raw)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO users_mfa
			(user_id, totp_secret, created_at, is_active, backup_codes, failed_attempts)
		VALUES (?, ?, ?, 1, ?, 0)`,
		userID, encrypted, formatTime(now()), codes)
	if err != nil {
		return fmt.Errorf("mfa: enroll user %d: %w", userID, err)
	}

	s.logEvent(ctx, userID, EventEnrollment, map[string]any{"method": "totp"})
	s.log.Info("user enrolled in MFA", "user_id", userID)
	return nil
}

// Secret returns the decrypted TOTP secret for an active enrollment.
func (s *Store) Secret(ctx context.Context, userID int64) (string, error) {
	var encrypted string
	err := s.db.QueryRowContext(ctx,
		`SELECT totp_secret FROM users_mfa WHERE user_id = ? AND is_active = 1`,
		userID).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotEnrolled
	}
	if err != nil {
		return "", fmt.Errorf("mfa: load secret for user %d: %w", userID, err)
	}
	return totp.Decrypt(encrypted, s.key)
}

// IsEnrolled reports whether the user has an active enrollment.
func (s *Store) IsEnrolled(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users_mfa WHERE user_id = ? AND is_active = 1`,
		userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mfa: enrollment check for user %d: %w", userID, err)
	}
	return true, nil
}

// UserInfo returns the enrollment record regardless of active state.
func (s *Store) UserInfo(ctx context.Context, userID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, created_at, last_used_at, is_active, failed_attempts
		FROM users_mfa WHERE user_id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotEnrolled
	}
	return u, err
}

// ListUsers returns all enrollment records, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, created_at, last_used_at, is_active, failed_attempts
		FROM users_mfa ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("mfa: list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(row rowScanner) (*User, error) {
	var (
		u          User
		createdAt  string
		lastUsedAt sql.NullString
	)
	if err := row.Scan(&u.ID, &createdAt, &lastUsedAt, &u.Active, &u.FailedAttempts); err != nil {
		return nil, err
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("mfa: parse created_at: %w", err)
	}
	u.CreatedAt = t

	if lastUsedAt.Valid {
		t, err := parseTime(lastUsedAt.String)
		if err != nil {
			return nil, fmt.Errorf("mfa: parse last_used_at: %w", err)
		}
		u.LastUsedAt = &t
	}
	return &u, nil
}

// Disable soft-deletes the enrollment and removes every session for the user.
func (s *Store) Disable(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users_mfa SET is_active = 0 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("mfa: disable user %d: %w", userID, err)
	}
	if err := s.DeleteUserSessions(ctx, userID); err != nil {
		return err
	}
	s.logEvent(ctx, userID, EventMFADisabled, nil)
	s.log.Info("user MFA disabled", "user_id", userID)
	return nil
}

// TouchLastUsed records a successful verification time.
func (s *Store) TouchLastUsed(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users_mfa SET last_used_at = ? WHERE user_id = ?`,
		formatTime(now()), userID)
	if err != nil {
		return fmt.Errorf("mfa: touch last_used for user %d: %w", userID, err)
	}
	return nil
}

// ConsumeBackupCode checks code against the user's unused backup code hashes.
// A match removes the hash (single use) and is audited.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID int64, code string) (bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT backup_codes FROM users_mfa WHERE user_id = ? AND is_active = 1`,
		userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotEnrolled
	}
	if err != nil {
		return false, fmt.Errorf("mfa: load backup codes for user %d: %w", userID, err)
	}
	if !raw.Valid || raw.String == "" {
		return false, nil
	}

	var hashes []string
	if err := json.Unmarshal([]byte(raw.String), &hashes); err != nil {
		return false, fmt.Errorf("mfa: decode backup codes for user %d: %w", userID, err)
	}

	for i, hash := range hashes {
		if !totp.VerifyBackupCode(code, hash) {
			continue
		}

		remaining := append(hashes[:i:i], hashes[i+1:]...)
		updated, err := json.Marshal(remaining)
		if err != nil {
			return false, fmt.Errorf("mfa: encode backup codes: %w", err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE users_mfa SET backup_codes = ? WHERE user_id = ?`,
			string(updated), userID); err != nil {
			return false, fmt.Errorf("mfa: consume backup code for user %d: %w", userID, err)
		}

		s.logEvent(ctx, userID, EventBackupCodeUsed, map[string]any{"remaining": len(remaining)})
		s.log.Info("backup code consumed", "user_id", userID, "remaining", len(remaining))
		return true, nil
	}
	return false, nil
}

// --- Sessions ---

// CreateSession inserts a session row with the given TTL and returns its ID.
func (s *Store) CreateSession(ctx context.Context, userID int64, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	created := now()
	expires := created.Add(ttl)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mfa_sessions (session_id, user_id, created_at, expires_at, last_activity)
		VALUES (?, ?, ?, ?, ?)`,
		id, userID, formatTime(created), formatTime(expires), formatTime(created))
	if err != nil {
		return "", fmt.Errorf("mfa: create session for user %d: %w", userID, err)
	}

	s.logEvent(ctx, userID, EventSessionCreated, map[string]any{
		"session_id": id,
		"ttl":        ttl.String(),
	})
	return id, nil
}

// Session loads a session row by ID.
func (s *Store) Session(ctx context.Context, id string) (*Session, error) {
	var (
		sess                               Session
		createdAt, expiresAt, lastActivity string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, user_id, created_at, expires_at, last_activity
		FROM mfa_sessions WHERE session_id = ?`, id).
		Scan(&sess.ID, &sess.UserID, &createdAt, &expiresAt, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mfa: load session %s: %w", id, err)
	}

	for _, f := range []struct {
		raw string
		dst *time.Time
	}{
		{createdAt, &sess.CreatedAt},
		{expiresAt, &sess.ExpiresAt},
		{lastActivity, &sess.LastActivity},
	} {
		t, err := parseTime(f.raw)
		if err != nil {
			return nil, fmt.Errorf("mfa: parse session timestamp: %w", err)
		}
		*f.dst = t
	}
	return &sess, nil
}

// UserSession returns the newest non-expired session ID for the user, or
// ErrSessionNotFound.
func (s *Store) UserSession(ctx context.Context, userID int64) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id FROM mfa_sessions
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at DESC LIMIT 1`,
		userID, formatTime(now())).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("mfa: lookup session for user %d: %w", userID, err)
	}
	return id, nil
}

// DeleteSession removes a session row; deleting a missing row is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM mfa_sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("mfa: delete session %s: %w", id, err)
	}
	return nil
}

// DeleteUserSessions removes every session for the user.
func (s *Store) DeleteUserSessions(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM mfa_sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("mfa: delete sessions for user %d: %w", userID, err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their TTL and returns the count.
func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mfa_sessions WHERE expires_at <= ?`, formatTime(now()))
	if err != nil {
		return 0, fmt.Errorf("mfa: delete expired sessions: %w", err)
	}
	count, _ := res.RowsAffected()
	if count > 0 {
		s.log.Debug("swept expired sessions", "count", count)
	}
	return count, nil
}

// --- Rate limiting ---

// IsRateLimited reports whether the user has reached the failure cap within
// the window. A counter whose window has elapsed is reset as a side effect.
func (s *Store) IsRateLimited(ctx context.Context, userID int64) (bool, error) {
	var (
		attempts   int
		lastFailed sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT failed_attempts, last_failed_attempt
		FROM users_mfa WHERE user_id = ?`, userID).Scan(&attempts, &lastFailed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mfa: rate limit check for user %d: %w", userID, err)
	}

	if attempts < maxFailedAttempts {
		return false, nil
	}

	if lastFailed.Valid {
		failedAt, err := parseTime(lastFailed.String)
		if err != nil {
			return false, fmt.Errorf("mfa: parse last_failed_attempt: %w", err)
		}
		if now().Sub(failedAt) >= rateLimitWindow {
			if err := s.ResetFailedAttempts(ctx, userID); err != nil {
				return false, err
			}
			return false, nil
		}
	}
	return true, nil
}

// IncrementFailedAttempts bumps the failure counter and returns the new value.
func (s *Store) IncrementFailedAttempts(ctx context.Context, userID int64) (int, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users_mfa
		SET failed_attempts = failed_attempts + 1, last_failed_attempt = ?
		WHERE user_id = ?`, formatTime(now()), userID)
	if err != nil {
		return 0, fmt.Errorf("mfa: increment failures for user %d: %w", userID, err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT failed_attempts FROM users_mfa WHERE user_id = ?`,
		userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("mfa: read failure count for user %d: %w", userID, err)
	}

	s.log.Warn("failed MFA attempt", "user_id", userID, "attempt", count)
	return count, nil
}

// ResetFailedAttempts clears the failure counter.
func (s *Store) ResetFailedAttempts(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users_mfa
		SET failed_attempts = 0, last_failed_attempt = NULL
		WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("mfa: reset failures for user %d: %w", userID, err)
	}
	return nil
}

// --- Audit log ---

// LogEvent appends an audit log entry. Audit writes are best-effort for
// callers on the hot path, hence the separate unexported variant.
func (s *Store) LogEvent(ctx context.Context, userID int64, eventType string, details map[string]any) error {
	var payload any
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("mfa: marshal audit details: %w", err)
		}
		payload = string(raw)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mfa_audit_log (user_id, event_type, timestamp, details)
		VALUES (?, ?, ?, ?)`,
		userID, eventType, formatTime(now()), payload)
	if err != nil {
		return fmt.Errorf("mfa: append audit event: %w", err)
	}
	return nil
}

func (s *Store) logEvent(ctx context.Context, userID int64, eventType string, details map[string]any) {
	if err := s.LogEvent(ctx, userID, eventType, details); err != nil {
		s.log.Error("audit log write failed", "user_id", userID, "event", eventType, "error", err)
	}
}

// Events returns the newest audit entries for a user.
func (s *Store) Events(ctx context.Context, userID int64, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, event_type, timestamp, COALESCE(details, '')
		FROM mfa_audit_log
		WHERE user_id = ?
		ORDER BY id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("mfa: read audit log for user %d: %w", userID, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e  Event
			ts string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &ts, &e.Details); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("mfa: parse audit timestamp: %w", err)
		}
		e.Timestamp = t
		events = append(events, e)
	}
	return events, rows.Err()
}
