package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/pilotodevendas/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const selectUserColumns = `
		SELECT id, email, password_hash, auth_provider, google_id, created_at, updated_at
		FROM users`

func scanUser(row *sql.Row) (types.User, error) {
	var (
		user         types.User
		passwordHash sql.NullString
		googleID     sql.NullString
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&passwordHash,
		&user.AuthProvider,
		&googleID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	if passwordHash.Valid {
		user.PasswordHash = &passwordHash.String
	}
	if googleID.Valid {
		user.GoogleID = &googleID.String
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUserColumns+`
		WHERE id = $1`, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUserColumns+`
		WHERE email = $1`, email))
}

func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (types.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, selectUserColumns+`
		WHERE google_id = $1`, googleID))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, password_hash, auth_provider, google_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.AuthProvider,
		user.GoogleID,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, translate(err)
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now().UTC()

	const query = `
		UPDATE users
		SET email = $1,
			password_hash = $2,
			auth_provider = $3,
			google_id = $4,
			updated_at = $5
		WHERE id = $6`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.PasswordHash,
		user.AuthProvider,
		user.GoogleID,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, translate(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}
