package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilotodevendas/apiserver/internal/google"
	"github.com/pilotodevendas/apiserver/internal/store"
	"github.com/pilotodevendas/apiserver/types"
)

// Resolution describes how a Google identity was matched to a local user.
type Resolution string

const (
	ResolutionExisting Resolution = "existing"
	ResolutionLinked   Resolution = "linked"
	ResolutionCreated  Resolution = "created"
)

// ErrAccountExists is returned when linking or creating collides with another account.
var ErrAccountExists = errors.New("account already exists")

// ResolveGoogleIdentity finds the user for a verified Google identity.
// Lookup is by Google subject first, then by exact email (which links the
// Google identity to the existing account, keeping its password), and a
// Google-only user is created when neither matches.
func (s *UserService) ResolveGoogleIdentity(ctx context.Context, id google.Identity) (types.User, Resolution, error) {
	user, err := s.repo.GetByGoogleID(ctx, id.Subject)
	if err == nil {
		return user, ResolutionExisting, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, "", fmt.Errorf("lookup by google id: %w", err)
	}

	user, err = s.repo.GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
		subject := id.Subject
		user.GoogleID = &subject
		user.AuthProvider = types.AuthProviderGoogle
		linked, err := s.Update(ctx, user)
		if err != nil {
			return types.User{}, "", resolveErr("link google identity", err)
		}
		return linked, ResolutionLinked, nil
	case !errors.Is(err, store.ErrNotFound):
		return types.User{}, "", fmt.Errorf("lookup by email: %w", err)
	}

	subject := id.Subject
	created, err := s.Create(ctx, types.User{
		Email:        id.Email,
		AuthProvider: types.AuthProviderGoogle,
		GoogleID:     &subject,
	})
	if err != nil {
		return types.User{}, "", resolveErr("create google user", err)
	}
	return created, ResolutionCreated, nil
}

func resolveErr(op string, err error) error {
	if errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("%s: %w", op, ErrAccountExists)
	}
	return fmt.Errorf("%s: %w", op, err)
}
