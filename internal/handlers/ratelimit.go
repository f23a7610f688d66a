package handlers

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultLimiterIdle = 10 * time.Minute
	pruneEvery         = time.Minute
)

type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles requests per client IP. Idle entries are dropped
// opportunistically while serving requests.
type RateLimiter struct {
	perMinute int
	limit     rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	limiters  map[string]*ipLimiter
	lastPrune time.Time
}

// NewRateLimiter allows perMinute sustained requests with the given burst.
// perMinute <= 0 returns nil, which Middleware treats as unlimited.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		perMinute: perMinute,
		limit:     rate.Limit(float64(perMinute) / 60.0),
		burst:     burst,
		idle:      defaultLimiterIdle,
		now:       time.Now,
		limiters:  make(map[string]*ipLimiter),
	}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Len is the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.RLock()
	entry, ok := rl.limiters[key]
	rl.mu.RUnlock()
	if ok {
		rl.mu.Lock()
		entry.lastAccess = now
		rl.mu.Unlock()
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastPrune) >= pruneEvery {
		rl.pruneLocked(now)
	}
	if entry, ok := rl.limiters[key]; ok {
		entry.lastAccess = now
		return entry.limiter
	}

	entry = &ipLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst), lastAccess: now}
	rl.limiters[key] = entry
	return entry.limiter
}

func (rl *RateLimiter) pruneLocked(now time.Time) {
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > rl.idle {
			delete(rl.limiters, key)
		}
	}
	rl.lastPrune = now
}

func (rl *RateLimiter) retryAfter() int {
	seconds := int(math.Ceil(60.0 / float64(rl.perMinute)))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// clientIP is the TCP peer unless the router rewrote RemoteAddr from
// trusted proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
