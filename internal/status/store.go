// Package status holds the live per-account session status snapshots.
// Each account's gateway session is the only writer of its entry; the host
// and the status API read on demand.
package status

import (
	"sync"
	"time"
)

// Session is the status snapshot of one account's gateway session.
// Connected implies Running.
type Session struct {
	AccountID       string     `json:"accountId"`
	Running         bool       `json:"running"`
	Connected       bool       `json:"connected"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
}

// Store keeps one Session per account.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewStore creates an empty status store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]Session)}
}

// Get returns the snapshot for an account.
func (s *Store) Get(accountID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[accountID]
	return sess, ok
}

// Snapshot returns a copy of all current snapshots.
func (s *Store) Snapshot() map[string]Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Session, len(s.sessions))
	for id, sess := range s.sessions {
		out[id] = sess
	}
	return out
}

// SetRunning marks the session as started (not yet connected).
func (s *Store) SetRunning(accountID string) {
	s.update(accountID, func(sess *Session) {
		sess.Running = true
		sess.Connected = false
	})
}

// SetConnected marks the session as live and stamps the connect time.
func (s *Store) SetConnected(accountID string, at time.Time) {
	s.update(accountID, func(sess *Session) {
		sess.Running = true
		sess.Connected = true
		sess.LastConnectedAt = &at
		sess.LastError = ""
	})
}

// SetError records a failure; the session keeps running (reconnecting) but
// is no longer connected.
func (s *Store) SetError(accountID string, errMsg string) {
	s.update(accountID, func(sess *Session) {
		sess.Connected = false
		sess.LastError = errMsg
	})
}

// SetClosed marks the session as fully stopped.
func (s *Store) SetClosed(accountID string) {
	s.update(accountID, func(sess *Session) {
		sess.Running = false
		sess.Connected = false
	})
}

func (s *Store) update(accountID string, fn func(*Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[accountID]
	sess.AccountID = accountID
	fn(&sess)
	// Invariant: a connected session is always running.
	if sess.Connected {
		sess.Running = true
	}
	s.sessions[accountID] = sess
}
