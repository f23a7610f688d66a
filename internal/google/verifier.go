// Package google verifies Google ID tokens and runs the OAuth2 code exchange.
package google

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultCertsURL = "https://www.googleapis.com/oauth2/v3/certs"
	DefaultTimeout  = 5 * time.Second
)

// KeySet maps key ids to Google's RSA signing keys.
type KeySet map[string]*rsa.PublicKey

// Verifier checks ID tokens against Google's published keys.
// Keys are fetched on every verification.
type Verifier struct {
	clientID   string
	certsURL   string
	httpClient *http.Client
	now        func() time.Time
}

// NewVerifier builds a Verifier expecting tokens issued to clientID.
func NewVerifier(clientID string, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{
		clientID:   clientID,
		certsURL:   DefaultCertsURL,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// WithCertsURL overrides the JWKS endpoint. Intended for tests.
func (v *Verifier) WithCertsURL(url string) *Verifier {
	v.certsURL = url
	return v
}

// WithClock replaces the time source. Intended for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// FetchSigningKeys downloads Google's current JWKS.
func (v *Verifier) FetchSigningKeys(ctx context.Context) (KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create certs request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("certs request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read certs response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("certs fetch failed with status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("failed to parse certs response: %w", err)
	}

	keys := make(KeySet, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("certs response contains no usable RSA keys")
	}
	return keys, nil
}

func rsaKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(eb)
	if len(nb) == 0 || !exp.IsInt64() || exp.Int64() < 2 {
		return nil, errors.New("invalid rsa key parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(exp.Int64())}, nil
}

// keyfunc picks the key named by the token's kid header, or offers all keys
// when the header is absent.
func (ks KeySet) keyfunc(token *jwt.Token) (any, error) {
	if kid, ok := token.Header["kid"].(string); ok && kid != "" {
		key, found := ks[kid]
		if !found {
			return nil, fmt.Errorf("unknown signing key %q", kid)
		}
		return key, nil
	}
	set := jwt.VerificationKeySet{}
	for _, key := range ks {
		set.Keys = append(set.Keys, key)
	}
	return set, nil
}

// Verify fetches the signing keys and validates rawIDToken. Rejections are
// always a *VerifyError.
func (v *Verifier) Verify(ctx context.Context, rawIDToken string) (*Claims, error) {
	keys, err := v.FetchSigningKeys(ctx)
	if err != nil {
		return nil, verifyErr(ReasonKeysUnavailable, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(rawIDToken, claims, keys.keyfunc); err != nil {
		return nil, classify(err, claims)
	}
	return claims, nil
}

func classify(err error, claims *Claims) *VerifyError {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return verifyErr(ReasonMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return verifyErr(ReasonBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return verifyErr(ReasonExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return verifyErr(ReasonWrongAudience, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing) && len(claims.Audience) == 0:
		return verifyErr(ReasonWrongAudience, err)
	case errors.Is(err, errUntrustedIssuer):
		return verifyErr(ReasonWrongIssuer, err)
	default:
		return verifyErr(ReasonMalformed, err)
	}
}
