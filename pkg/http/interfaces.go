package http

import (
	"context"

	"github.com/milan604/apiclient/pkg/credentials"
)

// HTTPClient defines the interface for HTTP client operations.
// This interface allows for mocking and alternative implementations.
type HTTPClient interface {
	// Do sends a request through the full hook pipeline.
	Do(ctx context.Context, req *PendingRequest) (*Response, error)

	Get(ctx context.Context, url string) (*Response, error)
	Post(ctx context.Context, url string, body any) (*Response, error)
	Put(ctx context.Context, url string, body any) (*Response, error)
	Patch(ctx context.Context, url string, body any) (*Response, error)
	Delete(ctx context.Context, url string) (*Response, error)

	// DoJSON performs a request and unmarshals the JSON response.
	DoJSON(ctx context.Context, req *PendingRequest, v any) error
	GetJSON(ctx context.Context, url string, v any) error
	PostJSON(ctx context.Context, url string, body any, v any) error
}

// Transport puts a request on the wire.
type Transport interface {
	Send(ctx context.Context, req *PendingRequest) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *PendingRequest) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *PendingRequest) (*Response, error) {
	return f(ctx, req)
}

// Replayer re-sends a request without running the error hooks again.
type Replayer interface {
	Replay(ctx context.Context, req *PendingRequest) (*Response, error)
}

// CredentialStore is the session state the client reads and the refresh
// coordinator updates. See package credentials for implementations.
type CredentialStore interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetCredentials(ctx context.Context, tokens credentials.TokenSet) error
	SignOut(ctx context.Context) error
}

// AuthBackend exchanges a refresh token for a new token set.
type AuthBackend interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*credentials.TokenSet, error)
}

// AuthBackendFunc adapts a function to AuthBackend.
type AuthBackendFunc func(ctx context.Context, refreshToken string) (*credentials.TokenSet, error)

func (f AuthBackendFunc) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*credentials.TokenSet, error) {
	return f(ctx, refreshToken)
}

var (
	_ HTTPClient      = (*Client)(nil)
	_ Replayer        = (*Client)(nil)
	_ CredentialStore = (*credentials.MemoryStore)(nil)
	_ CredentialStore = (*credentials.RedisStore)(nil)
	_ CredentialStore = (*credentials.GormStore)(nil)
)
