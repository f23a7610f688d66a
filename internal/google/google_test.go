package google

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "test-client-id.apps.googleusercontent.com"

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type signer struct {
	kid string
	key *rsa.PrivateKey
}

func newSigner(t *testing.T, kid string) signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return signer{kid: kid, key: key}
}

func (s signer) jwk() map[string]string {
	pub := s.key.PublicKey
	return map[string]string{
		"kid": s.kid,
		"kty": "RSA",
		"alg": "RS256",
		"use": "sig",
		"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func (s signer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.kid != "" {
		token.Header["kid"] = s.kid
	}
	signed, err := token.SignedString(s.key)
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            IssuerHTTPS,
		"aud":            testClientID,
		"sub":            "1234567890",
		"email":          "user@example.com",
		"email_verified": true,
		"name":           "Test User",
		"picture":        "https://lh3.googleusercontent.com/a/photo",
		"iat":            testNow.Add(-time.Minute).Unix(),
		"exp":            testNow.Add(time.Hour).Unix(),
	}
}

func certsServer(t *testing.T, signers ...signer) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	keys := make([]map[string]string, 0, len(signers))
	for _, s := range signers {
		keys = append(keys, s.jwk())
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestVerifier(certsURL string) *Verifier {
	return NewVerifier(testClientID, time.Second).
		WithCertsURL(certsURL).
		WithClock(func() time.Time { return testNow })
}

func TestVerifier_ValidToken(t *testing.T) {
	s := newSigner(t, "key-1")
	srv, hits := certsServer(t, newSigner(t, "key-0"), s)
	v := newTestVerifier(srv.URL)

	claims, err := v.Verify(context.Background(), s.sign(t, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "1234567890", claims.Subject)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, int32(1), hits.Load())
}

func TestVerifier_AcceptsBareIssuer(t *testing.T) {
	s := newSigner(t, "key-1")
	srv, _ := certsServer(t, s)

	c := validClaims()
	c["iss"] = IssuerBare
	_, err := newTestVerifier(srv.URL).Verify(context.Background(), s.sign(t, c))
	assert.NoError(t, err)
}

func TestVerifier_TokenWithoutKidTriesAllKeys(t *testing.T) {
	s := newSigner(t, "key-1")
	srv, _ := certsServer(t, newSigner(t, "key-0"), s)

	unnamed := signer{key: s.key}
	_, err := newTestVerifier(srv.URL).Verify(context.Background(), unnamed.sign(t, validClaims()))
	assert.NoError(t, err)
}

func TestVerifier_Rejections(t *testing.T) {
	trusted := newSigner(t, "key-1")
	srv, _ := certsServer(t, trusted)
	attacker := newSigner(t, "key-1")
	unknown := newSigner(t, "key-unknown")

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)

	with := func(key string, value any) jwt.MapClaims {
		c := validClaims()
		if value == nil {
			delete(c, key)
		} else {
			c[key] = value
		}
		return c
	}

	tests := []struct {
		name     string
		token    string
		reason   Reason
		sentinel error
	}{
		{"garbage", "not-a-jwt", ReasonMalformed, ErrMalformed},
		{"bad signature", attacker.sign(t, validClaims()), ReasonBadSignature, ErrBadSignature},
		{"unknown kid", unknown.sign(t, validClaims()), ReasonBadSignature, ErrBadSignature},
		{"hmac algorithm", hs, ReasonBadSignature, ErrBadSignature},
		{"expired", trusted.sign(t, with("exp", testNow.Add(-time.Second).Unix())), ReasonExpired, ErrExpired},
		{"wrong issuer", trusted.sign(t, with("iss", "https://evil.example.com")), ReasonWrongIssuer, ErrWrongIssuer},
		{"missing issuer", trusted.sign(t, with("iss", nil)), ReasonWrongIssuer, ErrWrongIssuer},
		{"wrong audience", trusted.sign(t, with("aud", "someone-else")), ReasonWrongAudience, ErrWrongAudience},
		{"missing audience", trusted.sign(t, with("aud", nil)), ReasonWrongAudience, ErrWrongAudience},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestVerifier(srv.URL).Verify(context.Background(), tt.token)
			require.Error(t, err)

			var verr *VerifyError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.reason, verr.Reason)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestVerifier_KeysUnavailable(t *testing.T) {
	s := newSigner(t, "key-1")
	token := s.sign(t, validClaims())

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{"))
	}))
	defer garbled.Close()

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"keys":[{"kid":"ec","kty":"EC"}]}`))
	}))
	defer empty.Close()

	for _, certsURL := range []string{failing.URL, garbled.URL, empty.URL, "http://127.0.0.1:1/certs"} {
		_, err := newTestVerifier(certsURL).Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrKeysUnavailable, certsURL)
	}
}

func TestVerifier_FetchTimesOut(t *testing.T) {
	block := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(block)

	v := NewVerifier(testClientID, 50*time.Millisecond).WithCertsURL(slow.URL)
	_, err := v.FetchSigningKeys(context.Background())
	assert.Error(t, err)
}

func TestClaims_Identity(t *testing.T) {
	c := &Claims{Email: "maria.silva@example.com", Name: "Maria Silva", Picture: "https://pic"}
	c.Subject = "sub-1"

	id, err := c.Identity()
	require.NoError(t, err)
	assert.Equal(t, Identity{
		Subject:     "sub-1",
		Email:       "maria.silva@example.com",
		DisplayName: "Maria Silva",
		PictureURL:  "https://pic",
	}, id)

	c.Name = ""
	c.Picture = ""
	id, err = c.Identity()
	require.NoError(t, err)
	assert.Equal(t, "maria.silva", id.DisplayName)
	assert.Empty(t, id.PictureURL)

	_, err = (&Claims{Email: "x@example.com"}).Identity()
	assert.ErrorIs(t, err, ErrMissingClaims)

	noEmail := &Claims{}
	noEmail.Subject = "sub-2"
	_, err = noEmail.Identity()
	assert.ErrorIs(t, err, ErrMissingClaims)
}

func TestClient_AuthCodeURL(t *testing.T) {
	c := NewClient(ClientConfig{
		ClientID:    "cid",
		RedirectURL: "http://localhost:5173/api/auth/google/callback",
	})

	raw := c.AuthCodeURL("state-value")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", u.Host)

	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "state-value", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "http://localhost:5173/api/auth/google/callback", q.Get("redirect_uri"))
}

func TestClient_Exchange(t *testing.T) {
	var gotCode string
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		gotCode = r.PostForm.Get("code")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     "raw.id.token",
		})
	}))
	defer tokenServer.Close()

	c := NewClient(ClientConfig{ClientID: "cid", ClientSecret: "secret", TokenURL: tokenServer.URL})
	idToken, err := c.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "raw.id.token", idToken)
	assert.Equal(t, "auth-code", gotCode)
}

func TestClient_ExchangeWithoutIDToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access","token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	c := NewClient(ClientConfig{ClientID: "cid", ClientSecret: "secret", TokenURL: tokenServer.URL})
	_, err := c.Exchange(context.Background(), "auth-code")
	assert.ErrorIs(t, err, ErrMissingIDToken)
}

func TestClient_ExchangeUpstreamError(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenServer.Close()

	c := NewClient(ClientConfig{ClientID: "cid", ClientSecret: "secret", TokenURL: tokenServer.URL})
	_, err := c.Exchange(context.Background(), "stale-code")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingIDToken)
	assert.Contains(t, err.Error(), "invalid_grant")
}
