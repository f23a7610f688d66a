package services

import (
	"context"
	"errors"

	"github.com/pilotodevendas/apiserver/types"
)

// ErrNoCredential is returned when a user would be stored without a password or Google identity.
var ErrNoCredential = errors.New("user must have a password or a linked Google identity")

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

func (s *UserService) GetByGoogleID(ctx context.Context, googleID string) (types.User, error) {
	return s.repo.GetByGoogleID(ctx, googleID)
}

func (s *UserService) Create(ctx context.Context, user types.User) (types.User, error) {
	if !user.HasCredential() {
		return types.User{}, ErrNoCredential
	}
	return s.repo.Create(ctx, user)
}

func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	if !user.HasCredential() {
		return types.User{}, ErrNoCredential
	}
	return s.repo.Update(ctx, user)
}
