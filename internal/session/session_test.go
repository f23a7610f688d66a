package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newRedisStore(t *testing.T, clock *fakeClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, DefaultExpiration).WithClock(clock.now), mr
}

// storeCases runs the same behavior checks against every Store backend.
func storeCases(t *testing.T, build func(t *testing.T, clock *fakeClock) Store) {
	ctx := context.Background()

	t.Run("create then resolve", func(t *testing.T) {
		s := build(t, newClock())
		id, err := s.Create(ctx, 42)
		require.NoError(t, err)
		assert.Len(t, id, 64)

		userID, err := s.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 42, userID)
	})

	t.Run("ids are unique", func(t *testing.T) {
		s := build(t, newClock())
		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			id, err := s.Create(ctx, 1)
			require.NoError(t, err)
			assert.False(t, seen[id])
			seen[id] = true
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		s := build(t, newClock())
		_, err := s.Resolve(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("valid at exactly the expiration", func(t *testing.T) {
		clock := newClock()
		s := build(t, clock)
		id, err := s.Create(ctx, 7)
		require.NoError(t, err)

		clock.advance(DefaultExpiration)
		userID, err := s.Resolve(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 7, userID)
	})

	t.Run("invalid after expiration", func(t *testing.T) {
		clock := newClock()
		s := build(t, clock)
		id, err := s.Create(ctx, 7)
		require.NoError(t, err)

		clock.advance(DefaultExpiration + time.Second)
		_, err = s.Resolve(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)

		existed, err := s.Delete(ctx, id)
		require.NoError(t, err)
		assert.False(t, existed, "expired session should have been evicted on resolve")
	})

	t.Run("delete then resolve", func(t *testing.T) {
		s := build(t, newClock())
		id, err := s.Create(ctx, 3)
		require.NoError(t, err)

		existed, err := s.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, existed)

		_, err = s.Resolve(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)

		existed, err = s.Delete(ctx, id)
		require.NoError(t, err)
		assert.False(t, existed)
	})
}

func TestMemoryStore(t *testing.T) {
	storeCases(t, func(t *testing.T, clock *fakeClock) Store {
		return NewMemoryStore(DefaultExpiration).WithClock(clock.now)
	})
}

func TestRedisStore(t *testing.T) {
	storeCases(t, func(t *testing.T, clock *fakeClock) Store {
		s, _ := newRedisStore(t, clock)
		return s
	})
}

func TestMemoryStore_LenCountsUntilEvicted(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	s := NewMemoryStore(time.Hour).WithClock(clock.now)

	id, err := s.Create(ctx, 1)
	require.NoError(t, err)
	_, err = s.Create(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	clock.advance(2 * time.Hour)
	_, err = s.Resolve(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestRedisStore_KeyExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, newClock())

	id, err := s.Create(ctx, 9)
	require.NoError(t, err)
	assert.True(t, mr.Exists(redisKeyPrefix+id))
	assert.Equal(t, DefaultExpiration, mr.TTL(redisKeyPrefix+id))

	mr.FastForward(DefaultExpiration + time.Second)
	_, err = s.Resolve(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CorruptPayloadIsNotFound(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, newClock())

	require.NoError(t, mr.Set(redisKeyPrefix+"broken", "{not json"))
	_, err := s.Resolve(ctx, "broken")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(redisKeyPrefix+"broken"))
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret")

	signed, err := tokens.Issue("abc123", 5)
	require.NoError(t, err)

	id, userID, err := tokens.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	assert.Equal(t, 5, userID)
}

func TestTokens_RejectsForgeries(t *testing.T) {
	tokens := NewTokens("test-secret")
	signed, err := tokens.Issue("abc123", 5)
	require.NoError(t, err)

	other, err := NewTokens("other-secret").Issue("abc123", 5)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{ID: "abc123", Subject: "5"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ID: "abc123"}).
		SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"tampered":     signed[:len(signed)-2] + "xx",
		"other secret": other,
		"alg none":     none,
		"no subject":   noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := tokens.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewMemoryStore(DefaultExpiration).WithClock(clock.now)
	m := NewManager(store, NewTokens("secret"))

	token, err := m.Create(ctx, 11)
	require.NoError(t, err)

	userID, err := m.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 11, userID)

	existed, err := m.Delete(ctx, token)
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = m.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)

	existed, err = m.Delete(ctx, token)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestManager_RejectsForgedAndMismatchedTokens(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(DefaultExpiration)
	m := NewManager(store, NewTokens("secret"))

	id, err := store.Create(ctx, 11)
	require.NoError(t, err)

	forged, err := NewTokens("attacker").Issue(id, 11)
	require.NoError(t, err)
	_, err = m.Resolve(ctx, forged)
	assert.ErrorIs(t, err, ErrNotFound)

	wrongUser, err := NewTokens("secret").Issue(id, 12)
	require.NoError(t, err)
	_, err = m.Resolve(ctx, wrongUser)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	existed, err := m.Delete(ctx, "garbage")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, 1, store.Len())
}

func TestManager_ExpiredSession(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	m := NewManager(NewMemoryStore(DefaultExpiration).WithClock(clock.now), NewTokens("secret"))

	token, err := m.Create(ctx, 1)
	require.NoError(t, err)

	clock.advance(DefaultExpiration + time.Minute)
	_, err = m.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

// exerciseConcurrently runs create/resolve/delete cycles from many goroutines
// against one session issuer. Every other session is deleted, so 25 per
// worker survive.
func exerciseConcurrently(t *testing.T, create func(int) (string, error), resolve func(string) (int, error), del func(string) (bool, error)) {
	t.Helper()
	const workers, rounds = 16, 50

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				id, err := create(userID)
				if err != nil {
					errs <- err
					return
				}
				got, err := resolve(id)
				if err != nil {
					errs <- err
					return
				}
				if got != userID {
					errs <- fmt.Errorf("session for user %d resolved to %d", userID, got)
					return
				}
				if i%2 == 0 {
					existed, err := del(id)
					if err != nil || !existed {
						errs <- fmt.Errorf("delete %s: existed=%v err=%v", id, existed, err)
						return
					}
					if _, err := resolve(id); !errors.Is(err, ErrNotFound) {
						errs <- fmt.Errorf("deleted session still resolves: %v", err)
						return
					}
				}
			}
		}(w + 1)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)

	exerciseConcurrently(t,
		func(userID int) (string, error) { return store.Create(ctx, userID) },
		func(id string) (int, error) { return store.Resolve(ctx, id) },
		func(id string) (bool, error) { return store.Delete(ctx, id) },
	)
	assert.Equal(t, 16*25, store.Len())
}

func TestManager_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour)
	m := NewManager(store, NewTokens("test-secret"))

	exerciseConcurrently(t,
		func(userID int) (string, error) { return m.Create(ctx, userID) },
		func(token string) (int, error) { return m.Resolve(ctx, token) },
		func(token string) (bool, error) { return m.Delete(ctx, token) },
	)
	assert.Equal(t, 16*25, store.Len())
}
