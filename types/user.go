package types

import "time"

// AuthProvider identifies how an account last authenticated.
type AuthProvider string

const (
	// AuthProviderEmail marks accounts created through email/password signup.
	AuthProviderEmail AuthProvider = "email"
	// AuthProviderGoogle marks accounts created or linked through Google sign-in.
	AuthProviderGoogle AuthProvider = "google"
)

// User represents an account in the system.
// It contains identity, credential, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Email is the user's email address. It is unique and compared
	// exactly as stored.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// It is nil for accounts that only sign in with Google.
	// This field is never exposed in API responses.
	PasswordHash *string `json:"-" db:"password_hash"`

	// AuthProvider is the provider the account is attached to
	// ("email" or "google").
	AuthProvider AuthProvider `json:"auth_provider" db:"auth_provider"`

	// GoogleID is the Google subject identifier once a Google
	// identity has been linked. Unique when present.
	GoogleID *string `json:"-" db:"google_id"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// HasPassword reports whether the user can sign in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// HasGoogleID reports whether a Google identity is linked.
func (u User) HasGoogleID() bool {
	return u.GoogleID != nil && *u.GoogleID != ""
}

// HasCredential reports whether the user has at least one way to authenticate.
func (u User) HasCredential() bool {
	return u.HasPassword() || u.HasGoogleID()
}
