package google

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Issuers Google signs ID tokens with.
const (
	IssuerHTTPS = "https://accounts.google.com"
	IssuerBare  = "accounts.google.com"
)

// ErrMissingClaims is returned when a verified token lacks an email or subject.
var ErrMissingClaims = errors.New("id token missing required claims (email or sub)")

var errUntrustedIssuer = errors.New("untrusted issuer")

// Claims are the verified contents of a Google ID token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	// EmailVerified is decoded for completeness. Identity resolution links
	// accounts by email without consulting it.
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Validate runs after the registered-claim checks during parsing.
func (c *Claims) Validate() error {
	if c.Issuer != IssuerHTTPS && c.Issuer != IssuerBare {
		return errUntrustedIssuer
	}
	return nil
}

// Identity is the subset of Claims the application acts on.
type Identity struct {
	Subject     string
	Email       string
	DisplayName string
	PictureURL  string
}

// Identity extracts the user identity, falling back to the email local part
// when the token carries no name.
func (c *Claims) Identity() (Identity, error) {
	if c.Email == "" || c.Subject == "" {
		return Identity{}, ErrMissingClaims
	}
	name := c.Name
	if name == "" {
		name, _, _ = strings.Cut(c.Email, "@")
	}
	return Identity{
		Subject:     c.Subject,
		Email:       c.Email,
		DisplayName: name,
		PictureURL:  c.Picture,
	}, nil
}
