package memory

import (
	"context"
	"sync"
	"time"

	"timestable-quiz/internal/domain"
	"timestable-quiz/internal/session"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Entries idle for longer than ttl are dropped lazily.
type SessionStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]storedSession
}

type storedSession struct {
	state     *session.State
	expiresAt time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return NewSessionStoreWithClock(ttl, time.Now)
}

// NewSessionStoreWithClock is test-only for deterministic expiry.
func NewSessionStoreWithClock(ttl time.Duration, clock func() time.Time) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		clock:    clock,
		sessions: make(map[string]storedSession),
	}
}

func (s *SessionStore) Get(_ context.Context, sessionID string) (*session.State, error) {
	now := s.clock()

	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.ttl > 0 && !entry.expiresAt.After(now) {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return nil, domain.ErrSessionNotFound
	}
	return entry.state.Clone(), nil
}

func (s *SessionStore) Save(_ context.Context, sessionID string, state *session.State) error {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = storedSession{
		state:     state.Clone(),
		expiresAt: now.Add(s.ttl),
	}
	s.evictExpiredLocked(now)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *SessionStore) evictExpiredLocked(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, entry := range s.sessions {
		if !entry.expiresAt.After(now) {
			delete(s.sessions, id)
		}
	}
}
