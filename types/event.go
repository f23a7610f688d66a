package types

import "time"

// AuthEventType names something that happened to an account.
type AuthEventType string

const (
	EventSignedUp      AuthEventType = "user.signed_up"
	EventLoggedIn      AuthEventType = "user.logged_in"
	EventLoggedOut     AuthEventType = "user.logged_out"
	EventGoogleLinked  AuthEventType = "user.google_linked"
	EventGoogleCreated AuthEventType = "user.google_created"
)

// AuthEvent is published to the message broker after an auth state change.
type AuthEvent struct {
	Type       AuthEventType `json:"type"`
	UserID     int           `json:"user_id"`
	Email      string        `json:"email,omitempty"`
	Provider   AuthProvider  `json:"provider,omitempty"`
	PictureURL string        `json:"picture_url,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
