package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pilotodevendas/apiserver/internal/google"
	"github.com/pilotodevendas/apiserver/internal/oauthstate"
	"github.com/pilotodevendas/apiserver/internal/password"
	"github.com/pilotodevendas/apiserver/internal/session"
	"github.com/pilotodevendas/apiserver/internal/store"
	"github.com/pilotodevendas/apiserver/types"
)

// DefaultRedirect is where a completed Google sign-in lands when no target was requested.
const DefaultRedirect = "/dashboard"

var (
	ErrEmailTaken            = errors.New("email already registered")
	ErrInvalidCredentials    = errors.New("invalid email or password")
	ErrPasswordTooLong       = errors.New("password must be at most 72 bytes")
	ErrUnauthenticated       = errors.New("not authenticated")
	ErrOAuthNotConfigured    = errors.New("google oauth not configured")
	ErrOAuthDenied           = errors.New("google authentication failed")
	ErrMissingCallbackParams = errors.New("missing code or state parameter")
	ErrInvalidState          = errors.New("invalid or expired state parameter")
	ErrTokenExchange         = errors.New("failed to exchange authorization code")
	ErrMissingIDToken        = errors.New("no ID token received from Google")
	ErrInvalidIDToken        = errors.New("invalid token")
)

// SessionManager issues and resolves session cookie values.
type SessionManager interface {
	Create(ctx context.Context, userID int) (string, error)
	Resolve(ctx context.Context, token string) (int, error)
	Delete(ctx context.Context, token string) (bool, error)
}

// OAuthClient drives the authorization-code exchange with Google.
type OAuthClient interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// IDTokenVerifier validates Google ID tokens.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*google.Claims, error)
}

// EventPublisher announces auth events. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event types.AuthEvent)
}

// AuthServiceConfig wires the collaborators of AuthService. OAuth and Verifier
// are both nil when Google sign-in is not configured.
type AuthServiceConfig struct {
	Users           *UserService
	Hasher          *password.Hasher
	Sessions        SessionManager
	States          oauthstate.Tracker
	OAuth           OAuthClient
	Verifier        IDTokenVerifier
	Events          EventPublisher
	DefaultRedirect string
	Now             func() time.Time
}

// AuthService implements signup, login, logout and the Google sign-in flow.
type AuthService struct {
	users           *UserService
	hasher          *password.Hasher
	sessions        SessionManager
	states          oauthstate.Tracker
	oauth           OAuthClient
	verifier        IDTokenVerifier
	events          EventPublisher
	defaultRedirect string
	now             func() time.Time
}

func NewAuthService(cfg AuthServiceConfig) *AuthService {
	if cfg.Hasher == nil {
		cfg.Hasher = password.NewHasher(0)
	}
	if cfg.Events == nil {
		cfg.Events = noopPublisher{}
	}
	if !isLocalPath(cfg.DefaultRedirect) {
		cfg.DefaultRedirect = DefaultRedirect
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuthService{
		users:           cfg.Users,
		hasher:          cfg.Hasher,
		sessions:        cfg.Sessions,
		states:          cfg.States,
		oauth:           cfg.OAuth,
		verifier:        cfg.Verifier,
		events:          cfg.Events,
		defaultRedirect: cfg.DefaultRedirect,
		now:             cfg.Now,
	}
}

// OAuthEnabled reports whether Google sign-in can run.
func (s *AuthService) OAuthEnabled() bool {
	return s.oauth != nil && s.verifier != nil
}

// Signup registers an email/password account and starts a session for it.
func (s *AuthService) Signup(ctx context.Context, email, plaintext string) (types.User, string, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, "", ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, "", fmt.Errorf("check email: %w", err)
	}

	hashed, err := s.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return types.User{}, "", ErrPasswordTooLong
		}
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Email:        email,
		PasswordHash: &hashed,
		AuthProvider: types.AuthProviderEmail,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return types.User{}, "", ErrEmailTaken
		}
		return types.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("create session: %w", err)
	}

	s.publish(ctx, types.EventSignedUp, user, "")
	return user, token, nil
}

// Login checks email/password credentials. Unknown emails, wrong passwords and
// Google-only accounts are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, plaintext string) (types.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !user.HasPassword() || !s.hasher.Verify(plaintext, *user.PasswordHash) {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return types.User{}, "", fmt.Errorf("create session: %w", err)
	}

	s.publish(ctx, types.EventLoggedIn, user, "")
	return user, token, nil
}

// Logout ends the session behind token. Unknown or empty tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	userID, resolveErr := s.sessions.Resolve(ctx, token)

	existed, err := s.sessions.Delete(ctx, token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if existed && resolveErr == nil {
		s.events.Publish(ctx, types.AuthEvent{
			Type:       types.EventLoggedOut,
			UserID:     userID,
			OccurredAt: s.now().UTC(),
		})
	}
	return nil
}

// CurrentUser returns the user owning the session behind token.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (types.User, error) {
	if token == "" {
		return types.User{}, ErrUnauthenticated
	}
	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, fmt.Errorf("resolve session: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// GoogleLoginURL records a new state and returns the consent screen URL.
// redirectTarget must be a local path; anything else is replaced by the default.
func (s *AuthService) GoogleLoginURL(ctx context.Context, redirectTarget string) (string, error) {
	if !s.OAuthEnabled() {
		return "", ErrOAuthNotConfigured
	}
	if !isLocalPath(redirectTarget) {
		redirectTarget = s.defaultRedirect
	}

	state, err := s.states.Issue(ctx, redirectTarget)
	if err != nil {
		return "", fmt.Errorf("issue state: %w", err)
	}
	return s.oauth.AuthCodeURL(state), nil
}

// CallbackParams are the query parameters Google sends back.
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// CallbackResult is a completed Google sign-in.
type CallbackResult struct {
	User           types.User
	Token          string
	RedirectTarget string
	Resolution     Resolution
}

// GoogleCallback completes the authorization-code flow. Provider errors,
// missing configuration and missing parameters are rejected before any
// network call.
func (s *AuthService) GoogleCallback(ctx context.Context, p CallbackParams) (CallbackResult, error) {
	if p.Error != "" {
		if p.State != "" && s.states != nil {
			_, _ = s.states.Consume(ctx, p.State)
		}
		return CallbackResult{}, fmt.Errorf("%w: %s", ErrOAuthDenied, p.Error)
	}
	if !s.OAuthEnabled() {
		return CallbackResult{}, ErrOAuthNotConfigured
	}
	if p.Code == "" || p.State == "" {
		return CallbackResult{}, ErrMissingCallbackParams
	}

	target, err := s.states.Consume(ctx, p.State)
	if err != nil {
		if errors.Is(err, oauthstate.ErrNotFound) || errors.Is(err, oauthstate.ErrExpired) {
			return CallbackResult{}, ErrInvalidState
		}
		return CallbackResult{}, fmt.Errorf("consume state: %w", err)
	}

	rawIDToken, err := s.oauth.Exchange(ctx, p.Code)
	if err != nil {
		if errors.Is(err, google.ErrMissingIDToken) {
			return CallbackResult{}, ErrMissingIDToken
		}
		return CallbackResult{}, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	claims, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %w", ErrInvalidIDToken, err)
	}
	identity, err := claims.Identity()
	if err != nil {
		return CallbackResult{}, fmt.Errorf("%w: %w", ErrInvalidIDToken, err)
	}

	user, resolution, err := s.users.ResolveGoogleIdentity(ctx, identity)
	if err != nil {
		return CallbackResult{}, err
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("create session: %w", err)
	}

	switch resolution {
	case ResolutionLinked:
		s.publish(ctx, types.EventGoogleLinked, user, identity.PictureURL)
	case ResolutionCreated:
		s.publish(ctx, types.EventGoogleCreated, user, identity.PictureURL)
	default:
		s.publish(ctx, types.EventLoggedIn, user, identity.PictureURL)
	}

	return CallbackResult{
		User:           user,
		Token:          token,
		RedirectTarget: target,
		Resolution:     resolution,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, kind types.AuthEventType, user types.User, pictureURL string) {
	s.events.Publish(ctx, types.AuthEvent{
		Type:       kind,
		UserID:     user.ID,
		Email:      user.Email,
		Provider:   user.AuthProvider,
		PictureURL: pictureURL,
		OccurredAt: s.now().UTC(),
	})
}

// isLocalPath accepts same-origin absolute paths only.
func isLocalPath(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return false
	}
	return !strings.ContainsAny(target, "\\\r\n")
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, types.AuthEvent) {}
