package google

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// ErrMissingIDToken is returned when the token endpoint response has no id_token.
var ErrMissingIDToken = errors.New("no ID token received from Google")

// Scopes requested on the consent screen.
var Scopes = []string{"openid", "email", "profile"}

// ClientConfig configures the OAuth2 client.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration

	// Overridable for tests.
	AuthURL  string
	TokenURL string
}

// Client drives the authorization-code flow against Google.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	endpoint := googleoauth.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthCodeURL returns the consent screen URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens and returns the raw ID token.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", err
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return "", ErrMissingIDToken
	}
	return idToken, nil
}
