// Package mockapi is an in-process upstream for exercising the client: a
// token endpoint that rotates refresh tokens and a few protected JSON routes.
package mockapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/milan604/apiclient/pkg/credentials"
	"github.com/milan604/apiclient/pkg/logger"
	"github.com/milan604/apiclient/pkg/observability"
)

const (
	TokenPath   = "/oauth/token"
	ProfilePath = "/api/v1/profile"
	EchoPath    = "/api/v1/echo"
	StatusPath  = "/api/v1/status/"
)

// Server is the mock upstream. All methods are safe for concurrent use.
type Server struct {
	engine          *gin.Engine
	secret          []byte
	accessTTL       time.Duration
	shutdownTimeout time.Duration
	log             logger.LogManager

	exchanges atomic.Int64
	failing   atomic.Bool
	delay     atomic.Int64 // nanoseconds
	gen       atomic.Int64

	mu            sync.Mutex
	hold          chan struct{}
	refreshTokens map[string]struct{}
	authHeaders   []string
	lastEcho      map[string]any
}

type Option func(*Server)

func WithLogger(l logger.LogManager) Option {
	return func(s *Server) { s.log = l }
}

// WithSecret sets the HS256 signing key.
func WithSecret(secret []byte) Option {
	return func(s *Server) { s.secret = secret }
}

func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) { s.accessTTL = d }
}

// WithTracing instruments the routes with OpenTelemetry.
func WithTracing(obs observability.ObservabilityIface) Option {
	return func(s *Server) {
		s.engine.Use(observability.GinMiddleware("mockapi"))
		if obs != nil {
			s.engine.Use(observability.TraceHandler(obs, "mockapi.request", func(c *gin.Context) { c.Next() }))
		}
	}
}

func New(opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:          gin.New(),
		secret:          []byte("mockapi-secret"),
		accessTTL:       time.Hour,
		shutdownTimeout: 15 * time.Second,
		refreshTokens:   map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrNop(s.log)

	s.engine.Use(requestIDMiddleware(), accessLogMiddleware(s.log), recoveryMiddleware(s.log))
	s.engine.POST(TokenPath, s.handleToken)

	api := s.engine.Group("/api/v1")
	api.GET("/status/:code", s.handleStatus)
	api.Use(s.requireAuth)
	api.GET("/profile", s.handleProfile)
	api.POST("/echo", s.handleEcho)
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Exchanges counts successful and failed refresh grants served.
func (s *Server) Exchanges() int64 { return s.exchanges.Load() }

// FailRefresh makes the token endpoint reject every grant.
func (s *Server) FailRefresh(fail bool) { s.failing.Store(fail) }

// SetExchangeDelay makes the token endpoint wait before answering.
func (s *Server) SetExchangeDelay(d time.Duration) { s.delay.Store(int64(d)) }

// HoldExchanges parks every token request, after it is counted, until release
// is called.
func (s *Server) HoldExchanges() (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.hold == ch {
				s.hold = nil
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() { s.gen.Add(1) }

// IssueSession mints a fresh access and refresh token pair.
func (s *Server) IssueSession() (credentials.TokenSet, error) {
	return s.issue()
}

// AuthHeaders returns the Authorization headers of authenticated requests
// that were accepted.
func (s *Server) AuthHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeaders...)
}

// LastEcho is the body last received on the echo route, as sent on the wire.
func (s *Server) LastEcho() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEcho
}

type accessClaims struct {
	Generation int64 `json:"gen"`
	jwt.RegisteredClaims
}

func (s *Server) issue() (credentials.TokenSet, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := accessClaims{
		Generation: s.gen.Load(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   "42",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return credentials.TokenSet{}, err
	}
	refresh := uuid.NewString()

	s.mu.Lock()
	s.refreshTokens[refresh] = struct{}{}
	s.mu.Unlock()

	return credentials.TokenSet{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer", ExpiresAt: exp.UTC()}, nil
}

type tokenRequest struct {
	GrantType    string `json:"grant_type" form:"grant_type" binding:"required"`
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

func (s *Server) handleToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
		return
	}
	if req.GrantType != "refresh_token" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
		return
	}
	s.exchanges.Add(1)

	s.mu.Lock()
	hold := s.hold
	s.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-c.Request.Context().Done():
			return
		}
	}

	if d := time.Duration(s.delay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-c.Request.Context().Done():
			return
		}
	}

	s.mu.Lock()
	_, ok := s.refreshTokens[req.RefreshToken]
	if ok {
		// rotate: a refresh token is good for one exchange
		delete(s.refreshTokens, req.RefreshToken)
	}
	s.mu.Unlock()

	if !ok || s.failing.Load() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
		return
	}

	ts, err := s.issue()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  ts.AccessToken,
		"refresh_token": ts.RefreshToken,
		"token_type":    ts.TokenType,
		"expires_in":    int64(s.accessTTL / time.Second),
	})
}

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}
	if err := s.verify(raw); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	s.mu.Lock()
	s.authHeaders = append(s.authHeaders, header)
	s.mu.Unlock()
	c.Next()
}

var errStaleToken = errors.New("token generation expired")

func (s *Server) verify(raw string) error {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	if claims.Generation != s.gen.Load() {
		return errStaleToken
	}
	return nil
}

func (s *Server) handleProfile(c *gin.Context) {
	settings := gin.H{
		"preferred_locale":   "en",
		"two_factor_enabled": true,
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":          42,
		"display_name":     "Ada Lovelace",
		"email_address":    "ada@example.com",
		"account_settings": settings,
	})
}

func (s *Server) handleEcho(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	s.mu.Lock()
	s.lastEcho = body
	s.mu.Unlock()

	query := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		query[k] = v[0]
	}
	c.JSON(http.StatusOK, gin.H{"received_body": body, "received_query": query})
}

func (s *Server) handleStatus(c *gin.Context) {
	code, err := strconv.Atoi(c.Param("code"))
	if err != nil || code < 200 || code > 599 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}
	c.JSON(code, gin.H{"status_code": code})
}
