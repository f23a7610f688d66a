// Package oauthstate issues and consumes single-use CSRF state values for the
// OAuth authorization-code flow.
package oauthstate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// DefaultExpiration bounds how long a user may take to complete the provider consent screen.
const DefaultExpiration = 10 * time.Minute

var (
	// ErrNotFound is returned for states that were never issued or were already consumed.
	ErrNotFound = errors.New("oauth state not found")
	// ErrExpired is returned for states consumed after their expiration. The state is removed regardless.
	ErrExpired = errors.New("oauth state expired")
)

// Tracker remembers issued states until they are consumed or expire.
type Tracker interface {
	// Issue records a new state bound to redirectTarget and returns it.
	Issue(ctx context.Context, redirectTarget string) (string, error)
	// Consume removes state and returns its redirect target.
	Consume(ctx context.Context, state string) (string, error)
	// Sweep drops expired states and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
