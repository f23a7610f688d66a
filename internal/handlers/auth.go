package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pilotodevendas/apiserver/internal/metrics"
	"github.com/pilotodevendas/apiserver/internal/services"
)

// AuthHandlerConfig wires an AuthHandler.
type AuthHandlerConfig struct {
	Auth    *services.AuthService
	Cookie  CookieConfig
	Metrics metrics.Recorder
	Logger  *slog.Logger
}

// AuthHandler serves the email/password and Google sign-in endpoints.
type AuthHandler struct {
	auth     *services.AuthService
	cookie   CookieConfig
	metrics  metrics.Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthHandler{
		auth:     cfg.Auth,
		cookie:   cfg.Cookie,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// AuthRouter registers auth routes on the given router. Credential endpoints
// go through limiter, which may be nil.
func AuthRouter(r chi.Router, h *AuthHandler, limiter *RateLimiter) {
	r.With(limiter.Middleware).Post("/signup", h.Signup)
	r.With(limiter.Middleware).Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.With(RequireSession(h.auth, h.logger)).Get("/me", h.Me)
	r.Get("/google/login", h.GoogleLogin)
	r.Get("/google/callback", h.GoogleCallback)
}

// CredentialsRequest is the body of signup.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest is the body of login. Length rules are not applied so every
// mismatch gets the same 401.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Signup creates an email/password account and starts a session.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !h.decode(w, r, &req) {
		h.metrics.RecordSignup(metrics.ResultFailure)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !h.valid(w, req) {
		h.metrics.RecordSignup(metrics.ResultFailure)
		return
	}

	user, token, err := h.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken):
			h.metrics.RecordSignup(metrics.ResultFailure)
			writeError(w, http.StatusBadRequest, "Email already registered")
			return
		case errors.Is(err, services.ErrPasswordTooLong):
			h.metrics.RecordSignup(metrics.ResultFailure)
			writeError(w, http.StatusBadRequest, "password must be at most 72 bytes")
			return
		}
		h.metrics.RecordSignup(metrics.ResultError)
		h.logger.Error("signup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.metrics.RecordSignup(metrics.ResultSuccess)
	h.metrics.RecordSessionCreated()
	h.cookie.set(w, token)
	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		h.metrics.RecordLogin(metrics.ResultFailure)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !h.valid(w, req) {
		h.metrics.RecordLogin(metrics.ResultFailure)
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			h.metrics.RecordLogin(metrics.ResultFailure)
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.metrics.RecordLogin(metrics.ResultError)
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	h.metrics.RecordLogin(metrics.ResultSuccess)
	h.metrics.RecordSessionCreated()
	h.cookie.set(w, token)
	writeJSON(w, http.StatusOK, user)
}

// Logout ends the current session, if any, and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookie.clear(w)
	if err := h.auth.Logout(r.Context(), sessionToken(r)); err != nil {
		h.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}

func (h *AuthHandler) valid(w http.ResponseWriter, req any) bool {
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}

	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "email must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
