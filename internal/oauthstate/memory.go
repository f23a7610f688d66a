package oauthstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pilotodevendas/apiserver/types"
)

// MemoryTracker keeps pending states in process memory.
type MemoryTracker struct {
	mu     sync.Mutex
	states map[string]types.OAuthState
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryTracker constructs a MemoryTracker. A non-positive ttl uses DefaultExpiration.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &MemoryTracker{
		states: make(map[string]types.OAuthState),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (t *MemoryTracker) WithClock(now func() time.Time) *MemoryTracker {
	t.now = now
	return t
}

// Issue sweeps expired entries before recording the new state.
func (t *MemoryTracker) Issue(_ context.Context, redirectTarget string) (string, error) {
	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked()
	t.states[state] = types.OAuthState{
		State:          state,
		CreatedAt:      t.now(),
		RedirectTarget: redirectTarget,
	}
	return state, nil
}

func (t *MemoryTracker) Consume(_ context.Context, state string) (string, error) {
	t.mu.Lock()
	entry, ok := t.states[state]
	delete(t.states, state)
	t.mu.Unlock()

	if !ok {
		return "", ErrNotFound
	}
	if t.now().Sub(entry.CreatedAt) > t.ttl {
		return "", ErrExpired
	}
	return entry.RedirectTarget, nil
}

func (t *MemoryTracker) Sweep(_ context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sweepLocked(), nil
}

func (t *MemoryTracker) sweepLocked() int {
	now := t.now()
	removed := 0
	for key, entry := range t.states {
		if now.Sub(entry.CreatedAt) > t.ttl {
			delete(t.states, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending states.
func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.states)
}

var _ Tracker = (*MemoryTracker)(nil)
