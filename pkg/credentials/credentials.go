// Package credentials owns the client's session tokens. Stores are the only
// place the access and refresh tokens live; every change is announced to
// registered listeners so the rest of the application can react to sign-in and
// sign-out.
package credentials

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoCredentials is returned when the store holds no session.
var ErrNoCredentials = errors.New("credentials: no session")

// TokenSet is what a successful token exchange yields.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry. A zero expiry
// never expires.
func (t TokenSet) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

type EventType string

const (
	EventSignedIn  EventType = "signed_in"
	EventSignedOut EventType = "signed_out"
)

// Event announces a session change. Tokens are never included.
type Event struct {
	Type      EventType `json:"type"`
	Session   string    `json:"session"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	At        time.Time `json:"at"`
}

// Listener is called synchronously after a store change has been persisted.
type Listener func(ctx context.Context, ev Event)

// Option configures any store in this package.
type Option func(*options)

type options struct {
	session   string
	listeners []Listener
	now       func() time.Time
}

// WithSession names the session the store holds; it keys the persisted record
// and is echoed in events.
func WithSession(name string) Option {
	return func(o *options) {
		if name != "" {
			o.session = name
		}
	}
}

// WithListener registers a change listener.
func WithListener(l Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{session: "default", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// broadcaster fans events out to listeners. Listeners can also be added after
// construction with Subscribe.
type broadcaster struct {
	mu        sync.RWMutex
	session   string
	listeners []Listener
	now       func() time.Time
}

func newBroadcaster(o options) *broadcaster {
	return &broadcaster{session: o.session, listeners: o.listeners, now: o.now}
}

// Subscribe adds a listener.
func (b *broadcaster) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *broadcaster) emit(ctx context.Context, typ EventType, expiresAt time.Time) {
	ev := Event{Type: typ, Session: b.session, ExpiresAt: expiresAt, At: b.now().UTC()}
	b.mu.RLock()
	listeners := append([]Listener(nil), b.listeners...)
	b.mu.RUnlock()
	for _, l := range listeners {
		l(ctx, ev)
	}
}
