package session

import (
	"context"
	"errors"
	"fmt"
)

// Manager issues and resolves session cookies backed by a Store.
type Manager struct {
	store  Store
	tokens *Tokens
}

func NewManager(store Store, tokens *Tokens) *Manager {
	return &Manager{store: store, tokens: tokens}
}

// Create starts a session for userID and returns the cookie value.
func (m *Manager) Create(ctx context.Context, userID int) (string, error) {
	id, err := m.store.Create(ctx, userID)
	if err != nil {
		return "", err
	}
	token, err := m.tokens.Issue(id, userID)
	if err != nil {
		_, _ = m.store.Delete(ctx, id)
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Resolve returns the user bound to token. Forged, expired, and unknown
// tokens all yield ErrNotFound.
func (m *Manager) Resolve(ctx context.Context, token string) (int, error) {
	if token == "" {
		return 0, ErrNotFound
	}
	id, claimedUser, err := m.tokens.Parse(token)
	if err != nil {
		return 0, ErrNotFound
	}

	userID, err := m.store.Resolve(ctx, id)
	if err != nil {
		return 0, err
	}
	if userID != claimedUser {
		return 0, ErrNotFound
	}
	return userID, nil
}

// Delete ends the session behind token and reports whether one existed.
func (m *Manager) Delete(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	id, _, err := m.tokens.Parse(token)
	if errors.Is(err, ErrInvalidToken) {
		return false, nil
	}
	return m.store.Delete(ctx, id)
}
