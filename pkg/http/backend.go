package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/milan604/apiclient/pkg/credentials"
)

// EndpointBackend exchanges refresh tokens by posting JSON to a token
// endpoint through an HTTPClient.
type EndpointBackend struct {
	client       HTTPClient
	tokenURL     string
	clientID     string
	clientSecret string
	now          func() time.Time
}

// BackendOption configures an auth backend.
type BackendOption func(*EndpointBackend)

// WithClientCredentials adds client_id and client_secret to the exchange.
func WithClientCredentials(id, secret string) BackendOption {
	return func(b *EndpointBackend) {
		b.clientID, b.clientSecret = id, secret
	}
}

func NewEndpointBackend(client HTTPClient, tokenURL string, opts ...BackendOption) *EndpointBackend {
	b := &EndpointBackend{client: client, tokenURL: tokenURL, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *EndpointBackend) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*credentials.TokenSet, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}
	req := struct {
		GrantType    string `json:"grant_type"`
		RefreshToken string `json:"refresh_token"`
		ClientID     string `json:"client_id,omitempty"`
		ClientSecret string `json:"client_secret,omitempty"`
	}{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
		ClientID:     b.clientID,
		ClientSecret: b.clientSecret,
	}

	var resp tokenResponse
	if err := b.client.PostJSON(ctx, b.tokenURL, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to call token endpoint: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.New("empty access token in response")
	}
	return resp.tokenSet(b.now()), nil
}

// OAuth2Backend performs the standard OAuth2 refresh_token grant.
type OAuth2Backend struct {
	cfg        *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Backend sends client credentials in the form body. httpClient may be
// nil.
func NewOAuth2Backend(tokenURL, clientID, clientSecret string, httpClient *http.Client) *OAuth2Backend {
	return &OAuth2Backend{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

func (b *OAuth2Backend) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*credentials.TokenSet, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}
	if b.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	tok, err := b.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("oauth2 refresh: %w", err)
	}

	expiresAt := tok.Expiry.UTC()
	if tok.Expiry.IsZero() {
		expiresAt = ResolveExpiry(tok.AccessToken, "", 0, time.Now())
	}
	return &credentials.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    expiresAt,
	}, nil
}
