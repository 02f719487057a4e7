package engine

import (
	"log/slog"
	"sync"
	"time"

	"deskbot/internal/domain"
)

// SessionStore holds per-client conversation state in memory. At most
// one session per client is visible at any time. Sessions are
// ephemeral: cleared on flow completion, abort, or TTL expiry, and
// not persisted across restarts.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*domain.Session
	ttl      time.Duration
	logger   *slog.Logger
}

func NewSessionStore(ttl time.Duration, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*domain.Session),
		ttl:      ttl,
		logger:   logger,
	}
}

// Get returns the client's session, or nil. Expiry is the caller's
// concern: router-side bookkeeping must run when an expired session is
// reclaimed, so Get never clears anything itself.
func (s *SessionStore) Get(clientID int64) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[clientID]
}

// Put stores the client's session, replacing any previous one. A Put
// after Clear is a fresh session; stale variables never resurrect.
func (s *SessionStore) Put(sess *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ClientID] = sess
}

// Clear removes the client's session.
func (s *SessionStore) Clear(clientID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, clientID)
}

// Expired reports whether the session has been idle longer than the TTL.
func (s *SessionStore) Expired(sess *domain.Session, now time.Time) bool {
	return now.Sub(sess.LastActive) > s.ttl
}

// ListExpired returns the client ids of sessions idle longer than the
// TTL. Callers must re-check under the per-client lock before clearing:
// a live turn may have touched the session since.
func (s *SessionStore) ListExpired(now time.Time) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []int64
	for clientID, sess := range s.sessions {
		if now.Sub(sess.LastActive) > s.ttl {
			expired = append(expired, clientID)
		}
	}
	return expired
}

// Len returns the number of active sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
