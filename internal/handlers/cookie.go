package handlers

import (
	"net/http"
	"time"

	"github.com/pilotodevendas/apiserver/internal/session"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session_id"

// CookieConfig controls the attributes of the session cookie.
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge time.Duration
}

func (c CookieConfig) maxAgeSeconds() int {
	if c.MaxAge <= 0 {
		return int(session.DefaultExpiration / time.Second)
	}
	return int(c.MaxAge / time.Second)
}

func (c CookieConfig) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   c.maxAgeSeconds(),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
