package session

import (
	"context"
	"sync"
	"time"

	"github.com/m3rciful/chanpost/core/logger"
	"log/slog"
)

// Store keeps sessions in memory keyed by user id. Every flow step runs as a
// single Update call so read-modify-write races between concurrent updates
// from the same user cannot lose writes.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	ttl      time.Duration
	now      func() time.Time
}

// DefaultTTL bounds how long an abandoned session survives.
const DefaultTTL = 30 * time.Minute

// NewStore creates an empty store. A non-positive ttl falls back to DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Active reports whether the user has a session that has not expired.
func (s *Store) Active(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return false
	}
	if s.expired(sess) {
		delete(s.sessions, userID)
		return false
	}
	return true
}

// Get returns a copy of the user's session.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || s.expired(sess) {
		return Session{}, false
	}
	return sess.clone(), true
}

// Update applies fn to the user's session under the store lock, creating the
// session first if absent, and returns a copy of the result. The whole
// read-modify-write happens atomically with respect to other updates.
func (s *Store) Update(userID int64, fn func(*Session)) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || s.expired(sess) {
		sess = &Session{UserID: userID}
		s.sessions[userID] = sess
	}
	fn(sess)
	sess.Touched = s.now()
	return sess.clone()
}

// Mutate applies fn to an existing live session under the store lock and
// returns a copy of the result. Unlike Update it never creates a session;
// a missing or expired session reports false and fn is not called.
func (s *Store) Mutate(userID int64, fn func(*Session)) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || s.expired(sess) {
		return Session{}, false
	}
	fn(sess)
	sess.Touched = s.now()
	return sess.clone(), true
}

// Take atomically snapshots and removes the user's session. When accept is
// non-nil it is called with the snapshot first; returning false leaves the
// session in place. Snapshot, check, and removal happen under one lock, so
// concurrent callers cannot both consume the same session.
func (s *Store) Take(userID int64, accept func(Session) bool) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || s.expired(sess) {
		return Session{}, false
	}
	snap := sess.clone()
	if accept != nil && !accept(snap) {
		return Session{}, false
	}
	delete(s.sessions, userID)
	return snap, true
}

// Clear removes the user's session, if any.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) expired(sess *Session) bool {
	return s.now().Sub(sess.Touched) > s.ttl
}

// Reap removes sessions idle beyond the TTL and returns how many were removed.
func (s *Store) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartReaper runs Reap on the given interval until ctx is done.
func (s *Store) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.Reap(); removed > 0 {
					logger.SVCPosts.Debug("session.reap",
						slog.Int("removed", removed),
						slog.Int("remaining", s.Len()),
					)
				}
			}
		}
	}()
}
