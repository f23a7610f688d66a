package oauthstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilotodevendas/apiserver/types"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "oauth_state:"

// RedisTracker keeps pending states in Redis. Key expiry does the sweeping.
type RedisTracker struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisTracker constructs a RedisTracker. A non-positive ttl uses DefaultExpiration.
func NewRedisTracker(rdb *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &RedisTracker{rdb: rdb, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (t *RedisTracker) WithClock(now func() time.Time) *RedisTracker {
	t.now = now
	return t
}

func (t *RedisTracker) Issue(ctx context.Context, redirectTarget string) (string, error) {
	state, err := newState()
	if err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	payload, err := json.Marshal(types.OAuthState{
		State:          state,
		CreatedAt:      t.now().UTC(),
		RedirectTarget: redirectTarget,
	})
	if err != nil {
		return "", err
	}
	if err := t.rdb.Set(ctx, redisKeyPrefix+state, payload, t.ttl).Err(); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return state, nil
}

// Consume uses GETDEL so two concurrent callbacks cannot both observe the state.
func (t *RedisTracker) Consume(ctx context.Context, state string) (string, error) {
	raw, err := t.rdb.GetDel(ctx, redisKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("consume oauth state: %w", err)
	}

	var entry types.OAuthState
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", ErrNotFound
	}
	if t.now().Sub(entry.CreatedAt) > t.ttl {
		return "", ErrExpired
	}
	return entry.RedirectTarget, nil
}

func (t *RedisTracker) Sweep(context.Context) (int, error) {
	return 0, nil
}

var _ Tracker = (*RedisTracker)(nil)
