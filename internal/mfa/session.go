package mfa

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the sweep loop removes expired sessions.
const DefaultCleanupInterval = 5 * time.Minute

// SessionManager fronts the store with an in-memory userID→sessionID cache.
// Validity is always confirmed against the row's expiry, so a passed TTL
// denies access even before the sweeper runs.
type SessionManager struct {
	store *Store
	ttl   time.Duration
	log   *slog.Logger

	mu    sync.Mutex
	cache map[int64]string
}

// NewSessionManager creates a manager issuing sessions with the given TTL.
func NewSessionManager(store *Store, ttl time.Duration, log *slog.Logger) *SessionManager {
	return &SessionManager{
		store: store,
		ttl:   ttl,
		log:   log,
		cache: make(map[int64]string),
	}
}

// TTL returns the configured session duration.
func (m *SessionManager) TTL() time.Duration { return m.ttl }

// Create issues a new session for the user, invalidating any prior one.
func (m *SessionManager) Create(ctx context.Context, userID int64) (string, error) {
	m.mu.Lock()
	prior, hadPrior := m.cache[userID]
	m.mu.Unlock()

	if hadPrior {
		if err := m.store.DeleteSession(ctx, prior); err != nil {
			return "", err
		}
	}
	// Rows the cache never saw (restart, cleared cache) must go too.
	if err := m.store.DeleteUserSessions(ctx, userID); err != nil {
		return "", err
	}

	id, err := m.store.CreateSession(ctx, userID, m.ttl)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.cache[userID] = id
	m.mu.Unlock()

	m.log.Info("MFA session created", "user_id", userID, "ttl", m.ttl)
	return id, nil
}

// Valid reports whether the user holds a non-expired session. Expiry is
// checked lazily against the row; stale cache entries are evicted.
func (m *SessionManager) Valid(ctx context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	id, cached := m.cache[userID]
	m.mu.Unlock()

	if cached {
		sess, err := m.store.Session(ctx, id)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			m.evict(userID)
		case err != nil:
			return false, err
		case sess.Expired(time.Now().UTC()):
			m.evict(userID)
		default:
			return true, nil
		}
	}

	// Cache miss: the row may still exist from before a restart.
	id, err := m.store.UserSession(ctx, userID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	m.cache[userID] = id
	m.mu.Unlock()
	return true, nil
}

// Invalidate removes the user's session from cache and store.
func (m *SessionManager) Invalidate(ctx context.Context, userID int64) error {
	m.evict(userID)
	if err := m.store.DeleteUserSessions(ctx, userID); err != nil {
		return err
	}
	m.log.Info("MFA session invalidated", "user_id", userID)
	return nil
}

// Info returns the user's current session row, if any.
func (m *SessionManager) Info(ctx context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	id, cached := m.cache[userID]
	m.mu.Unlock()

	if !cached {
		var err error
		id, err = m.store.UserSession(ctx, userID)
		if err != nil {
			return nil, err
		}
	}
	return m.store.Session(ctx, id)
}

// Run sweeps expired sessions every interval until ctx is cancelled. A sweep
// that removed rows clears the cache; entries are re-validated on next read.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			count, err := m.store.DeleteExpiredSessions(ctx)
			if err != nil {
				m.log.Error("session sweep failed", "error", err)
				continue
			}
			if count > 0 {
				m.mu.Lock()
				m.cache = make(map[int64]string)
				m.mu.Unlock()
			}
		case <-ctx.Done():
			return
		}
	}
}

func (m *SessionManager) evict(userID int64) {
	m.mu.Lock()
	delete(m.cache, userID)
	m.mu.Unlock()
}
