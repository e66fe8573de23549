package http

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/milan604/apiclient/pkg/credentials"
)

// DefaultTokenTTL is assumed when neither the token response nor the token
// itself says when it expires.
const DefaultTokenTTL = time.Hour

// tokenResponse is the JSON body returned by a token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    string `json:"expires_at"` // RFC3339
}

func (r tokenResponse) tokenSet(now time.Time) *credentials.TokenSet {
	return &credentials.TokenSet{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresAt:    ResolveExpiry(r.AccessToken, r.ExpiresAt, r.ExpiresIn, now),
	}
}

// ResolveExpiry picks the access token expiry from, in order: an RFC3339
// expires_at, expires_in seconds, the JWT exp claim, DefaultTokenTTL.
func ResolveExpiry(accessToken, expiresAt string, expiresIn int64, now time.Time) time.Time {
	if expiresAt != "" {
		if parsed, err := time.Parse(time.RFC3339, expiresAt); err == nil {
			return parsed.UTC()
		}
	}
	if expiresIn > 0 {
		return now.Add(time.Duration(expiresIn) * time.Second).UTC()
	}
	if exp, ok := JWTExpiry(accessToken); ok {
		return exp
	}
	return now.Add(DefaultTokenTTL).UTC()
}

// JWTExpiry reads the exp claim of a JWT. The signature is not verified.
func JWTExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.UTC(), true
}
