package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pilotodevendas/apiserver/types"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "session:"

// RedisStore keeps sessions in Redis so several API instances can share them.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore constructs a RedisStore. A non-positive ttl uses DefaultExpiration.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func (s *RedisStore) Create(ctx context.Context, userID int) (string, error) {
	id, err := newID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}

	payload, err := json.Marshal(types.Session{ID: id, UserID: userID, CreatedAt: s.now().UTC()})
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+id, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

// Resolve returns the user id for a live session. The stored creation time is
// re-checked so a clock-skewed or extended key TTL cannot outlive the expiration.
func (s *RedisStore) Resolve(ctx context.Context, sessionID string) (int, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load session: %w", err)
	}

	var sess types.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		_ = s.rdb.Del(ctx, redisKeyPrefix+sessionID).Err()
		return 0, ErrNotFound
	}
	if sess.Age(s.now()) > s.ttl {
		_ = s.rdb.Del(ctx, redisKeyPrefix+sessionID).Err()
		return 0, ErrNotFound
	}
	return sess.UserID, nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.rdb.Del(ctx, redisKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}

var _ Store = (*RedisStore)(nil)
