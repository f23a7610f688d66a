package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pilotodevendas/apiserver/types"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]types.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore constructs a MemoryStore. A non-positive ttl uses DefaultExpiration.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &MemoryStore{
		sessions: make(map[string]types.Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Create(_ context.Context, userID int) (string, error) {
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	s.mu.Lock()
	s.sessions[id] = types.Session{ID: id, UserID: userID, CreatedAt: s.now()}
	s.mu.Unlock()

	return id, nil
}

// Resolve returns the user id for a live session. Expired sessions are evicted.
func (s *MemoryStore) Resolve(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, ErrNotFound
	}
	if sess.Age(s.now()) > s.ttl {
		delete(s.sessions, sessionID)
		return 0, ErrNotFound
	}
	return sess.UserID, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

var _ Store = (*MemoryStore)(nil)
