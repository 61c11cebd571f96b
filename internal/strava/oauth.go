package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/oauth2"

	"github.com/digitaldrywood/stravaexport/internal/config"
)

// OAuth performs the authorization-code grant against Strava.
type OAuth struct {
	config *oauth2.Config
}

// Token is an OAuth token pair plus the athlete Strava returns alongside it
// on the initial exchange.
type Token struct {
	*oauth2.Token
	Athlete *Athlete
}

func NewOAuth(api config.APIInfo) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     strconv.Itoa(api.ClientID),
			ClientSecret: api.ClientSecret,
			RedirectURL:  api.RedirectURI,
			// Strava expects its comma separated scope list verbatim
			Scopes: []string{api.Scope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   api.AuthURL,
				TokenURL:  api.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

func (o *OAuth) RedirectURL() string {
	return o.config.RedirectURL
}

// AuthCodeURL returns the URL the user has to visit to grant access.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// Exchange trades an authorization code for a token pair.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Token, error) {
	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("unable to exchange authorization code: %w", err)
	}

	result := &Token{Token: tok}
	if raw := tok.Extra("athlete"); raw != nil {
		b, err := json.Marshal(raw)
		if err == nil {
			var a Athlete
			if err := json.Unmarshal(b, &a); err == nil {
				result.Athlete = &a
			}
		}
	}

	return result, nil
}

// Refresh forces a new access token from the refresh token in tok.
func (o *OAuth) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	if tok == nil || tok.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token available")
	}
	fresh, err := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return fresh, nil
}

// TokenSource returns a source that refreshes tok when it expires and calls
// onRefresh with every token it has not handed out before.
func (o *OAuth) TokenSource(ctx context.Context, tok *oauth2.Token, onRefresh func(*oauth2.Token)) oauth2.TokenSource {
	last := ""
	if tok != nil {
		last = tok.AccessToken
	}
	return &notifyingSource{
		src:       o.config.TokenSource(ctx, tok),
		last:      last,
		onRefresh: onRefresh,
	}
}

// Client returns an HTTP client authorizing requests with ts.
func (o *OAuth) Client(ctx context.Context, ts oauth2.TokenSource) *http.Client {
	return oauth2.NewClient(ctx, ts)
}

type notifyingSource struct {
	src       oauth2.TokenSource
	onRefresh func(*oauth2.Token)

	mu   sync.Mutex
	last string
}

func (s *notifyingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	changed := tok.AccessToken != s.last
	s.last = tok.AccessToken
	s.mu.Unlock()

	if changed && s.onRefresh != nil {
		s.onRefresh(tok)
	}
	return tok, nil
}

// ConfigTokens converts an oauth2 token to its config file form.
func ConfigTokens(tok *oauth2.Token) config.Tokens {
	return config.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
}

// OAuth2Token converts stored tokens back into an oauth2 token.
func OAuth2Token(t config.Tokens) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.ExpiresAt,
	}
}
