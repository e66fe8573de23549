package credentials

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccess    = "access_token"
	fieldRefresh   = "refresh_token"
	fieldType      = "token_type"
	fieldExpiresAt = "expires_at"
)

// RedisStore keeps the session in a redis hash so several processes can share
// it. The hash key is the session name.
type RedisStore struct {
	*broadcaster

	rdb redis.UniversalClient
	key string
}

func NewRedisStore(rdb redis.UniversalClient, opts ...Option) *RedisStore {
	o := buildOptions(opts)
	return &RedisStore{broadcaster: newBroadcaster(o), rdb: rdb, key: o.session}
}

func (s *RedisStore) field(ctx context.Context, name string) (string, error) {
	v, err := s.rdb.HGet(ctx, s.key, name).Result()
	if errors.Is(err, redis.Nil) || (err == nil && v == "") {
		return "", ErrNoCredentials
	}
	if err != nil {
		return "", fmt.Errorf("credentials: redis get %s: %w", name, err)
	}
	return v, nil
}

func (s *RedisStore) AccessToken(ctx context.Context) (string, error) {
	return s.field(ctx, fieldAccess)
}

func (s *RedisStore) RefreshToken(ctx context.Context) (string, error) {
	return s.field(ctx, fieldRefresh)
}

// Tokens returns the full token set.
func (s *RedisStore) Tokens(ctx context.Context) (TokenSet, error) {
	m, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return TokenSet{}, fmt.Errorf("credentials: redis load: %w", err)
	}
	if len(m) == 0 {
		return TokenSet{}, ErrNoCredentials
	}
	ts := TokenSet{AccessToken: m[fieldAccess], RefreshToken: m[fieldRefresh], TokenType: m[fieldType]}
	if sec, err := strconv.ParseInt(m[fieldExpiresAt], 10, 64); err == nil && sec > 0 {
		ts.ExpiresAt = time.Unix(sec, 0).UTC()
	}
	return ts, nil
}

func (s *RedisStore) SetCredentials(ctx context.Context, tokens TokenSet) error {
	values := map[string]any{
		fieldAccess: tokens.AccessToken,
		fieldType:   tokens.TokenType,
	}
	if tokens.RefreshToken != "" {
		values[fieldRefresh] = tokens.RefreshToken
	}
	if !tokens.ExpiresAt.IsZero() {
		values[fieldExpiresAt] = tokens.ExpiresAt.Unix()
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.key, values)
		if tokens.ExpiresAt.IsZero() {
			p.HDel(ctx, s.key, fieldExpiresAt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("credentials: redis save: %w", err)
	}
	s.emit(ctx, EventSignedIn, tokens.ExpiresAt)
	return nil
}

func (s *RedisStore) SignOut(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("credentials: redis delete: %w", err)
	}
	s.emit(ctx, EventSignedOut, time.Time{})
	return nil
}
