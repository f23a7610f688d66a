// Package session keeps server-side login sessions and encodes them into cookies.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// DefaultExpiration is the absolute lifetime of a session.
const DefaultExpiration = 7 * 24 * time.Hour

// ErrNotFound is returned for sessions that are absent, expired, or unreadable.
var ErrNotFound = errors.New("session not found")

// Store maps opaque session identifiers to user ids.
type Store interface {
	Create(ctx context.Context, userID int) (string, error)
	Resolve(ctx context.Context, sessionID string) (int, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// newID returns 256 bits of randomness, hex encoded.
func newID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
