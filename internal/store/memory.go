package store

import (
	"context"
	"sync"
	"time"

	"github.com/pilotodevendas/apiserver/types"
)

// MemoryUserRepository keeps users in process memory. It enforces the same
// uniqueness rules as the users table and is used when Postgres is unavailable.
type MemoryUserRepository struct {
	mu     sync.Mutex
	users  map[int]types.User
	nextID int
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[int]types.User), nextID: 1}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) GetByGoogleID(_ context.Context, googleID string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.GoogleID != nil && *user.GoogleID == googleID {
			return cloneUser(user), nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflictsLocked(user) {
		return types.User{}, ErrAlreadyExists
	}

	now := time.Now().UTC()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++

	r.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return types.User{}, ErrNotFound
	}
	if r.conflictsLocked(user) {
		return types.User{}, ErrAlreadyExists
	}

	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

// conflictsLocked reports whether another user already holds user's email or google id.
func (r *MemoryUserRepository) conflictsLocked(user types.User) bool {
	for id, other := range r.users {
		if id == user.ID {
			continue
		}
		if other.Email == user.Email {
			return true
		}
		if user.HasGoogleID() && other.HasGoogleID() && *other.GoogleID == *user.GoogleID {
			return true
		}
	}
	return false
}

func cloneUser(u types.User) types.User {
	if u.PasswordHash != nil {
		hash := *u.PasswordHash
		u.PasswordHash = &hash
	}
	if u.GoogleID != nil {
		gid := *u.GoogleID
		u.GoogleID = &gid
	}
	return u
}
