package session

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for cookie values that fail signature or shape checks.
var ErrInvalidToken = errors.New("invalid session token")

// Tokens signs session identifiers into tamper-evident cookie values.
// Expiration is decided by the Store, so issued tokens carry no exp claim.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens returns a codec keyed with secret.
func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret), now: time.Now}
}

// Issue returns a signed token binding sessionID to userID.
func (t *Tokens) Issue(sessionID string, userID int) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       sessionID,
		Subject:  strconv.Itoa(userID),
		IssuedAt: jwt.NewNumericDate(t.now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse checks the signature of tokenString and returns the session id and user id it carries.
func (t *Tokens) Parse(tokenString string) (string, int, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", 0, ErrInvalidToken
	}

	sessionID := strings.TrimSpace(claims.ID)
	if sessionID == "" {
		return "", 0, ErrInvalidToken
	}
	userID, err := strconv.Atoi(claims.Subject)
	if err != nil || userID < 1 {
		return "", 0, ErrInvalidToken
	}
	return sessionID, userID, nil
}
