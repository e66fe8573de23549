package credentials

import (
	"context"
	"sync"
)

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	*broadcaster

	mu     sync.RWMutex
	tokens TokenSet
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{broadcaster: newBroadcaster(buildOptions(opts))}
}

func (s *MemoryStore) AccessToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens.AccessToken == "" {
		return "", ErrNoCredentials
	}
	return s.tokens.AccessToken, nil
}

func (s *MemoryStore) RefreshToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens.RefreshToken == "" {
		return "", ErrNoCredentials
	}
	return s.tokens.RefreshToken, nil
}

// Tokens returns a copy of the full token set.
func (s *MemoryStore) Tokens(context.Context) (TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens.AccessToken == "" && s.tokens.RefreshToken == "" {
		return TokenSet{}, ErrNoCredentials
	}
	return s.tokens, nil
}

// SetCredentials replaces the session. An empty refresh token keeps the
// current one, as token endpoints may omit it when it is not rotated.
func (s *MemoryStore) SetCredentials(ctx context.Context, tokens TokenSet) error {
	s.mu.Lock()
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = s.tokens.RefreshToken
	}
	s.tokens = tokens
	s.mu.Unlock()

	s.emit(ctx, EventSignedIn, tokens.ExpiresAt)
	return nil
}

func (s *MemoryStore) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.tokens = TokenSet{}
	s.mu.Unlock()

	s.emit(ctx, EventSignedOut, TokenSet{}.ExpiresAt)
	return nil
}
