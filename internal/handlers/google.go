package handlers

import (
	"errors"
	"net/http"

	"github.com/pilotodevendas/apiserver/internal/metrics"
	"github.com/pilotodevendas/apiserver/internal/services"
)

// GoogleLogin redirects to the Google consent screen. An optional ?redirect=
// local path is where the browser lands after a successful callback.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("redirect")

	authURL, err := h.auth.GoogleLoginURL(r.Context(), target)
	if err != nil {
		if errors.Is(err, services.ErrOAuthNotConfigured) {
			h.logger.Error("google login requested without oauth credentials")
			writeError(w, http.StatusInternalServerError, "Google OAuth not configured")
			return
		}
		h.logger.Error("start google login", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start Google sign-in")
		return
	}

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// GoogleCallback completes the authorization-code flow, sets the session
// cookie and redirects to the target recorded with the state.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.auth.GoogleCallback(r.Context(), services.CallbackParams{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Error: q.Get("error"),
	})
	if err != nil {
		status, message := callbackError(err)
		if status >= http.StatusInternalServerError {
			h.metrics.RecordOAuthCallback(metrics.ResultError)
			h.logger.Error("google callback failed", "error", err)
		} else {
			h.metrics.RecordOAuthCallback(metrics.ResultFailure)
			h.logger.Warn("google callback rejected", "status", status, "error", err)
		}
		writeError(w, status, message)
		return
	}

	h.metrics.RecordOAuthCallback(metrics.ResultSuccess)
	h.metrics.RecordSessionCreated()
	h.logger.Info("google sign-in", "user_id", result.User.ID, "resolution", result.Resolution)

	h.cookie.set(w, result.Token)
	http.Redirect(w, r, result.RedirectTarget, http.StatusFound)
}

// callbackError maps a failed callback to a status and a client-facing message.
func callbackError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrOAuthDenied):
		return http.StatusBadRequest, capitalize(err.Error())
	case errors.Is(err, services.ErrOAuthNotConfigured):
		return http.StatusInternalServerError, "Google OAuth not configured"
	case errors.Is(err, services.ErrMissingCallbackParams):
		return http.StatusBadRequest, "Missing code or state parameter"
	case errors.Is(err, services.ErrInvalidState):
		return http.StatusBadRequest, "Invalid or expired state parameter"
	case errors.Is(err, services.ErrAccountExists):
		return http.StatusBadRequest, "An account with this email or Google identity already exists"
	case errors.Is(err, services.ErrMissingIDToken):
		return http.StatusUnauthorized, "No ID token received from Google"
	case errors.Is(err, services.ErrTokenExchange), errors.Is(err, services.ErrInvalidIDToken):
		return http.StatusUnauthorized, capitalize(err.Error())
	default:
		return http.StatusInternalServerError, "failed to complete Google sign-in"
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-('a'-'A')) + s[1:]
}
