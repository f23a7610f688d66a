package types

import "time"

// Session binds an opaque identifier to an authenticated user.
type Session struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Age returns how long the session has existed at now.
func (s Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// OAuthState is the CSRF token for one pending OAuth flow.
type OAuthState struct {
	State          string    `json:"state"`
	CreatedAt      time.Time `json:"created_at"`
	RedirectTarget string    `json:"redirect_target"`
}
