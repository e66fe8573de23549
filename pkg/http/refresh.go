package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/milan604/apiclient/pkg/apperr"
	"github.com/milan604/apiclient/pkg/credentials"
	"github.com/milan604/apiclient/pkg/logger"
	"github.com/milan604/apiclient/pkg/observability"
)

// BearerPrefix precedes the access token in the Authorization header.
const BearerPrefix = "Bearer "

const defaultExchangeTimeout = 15 * time.Second

type refreshResult struct {
	token string
	err   error
}

// RefreshCoordinator turns 401 responses into a single refresh token exchange.
// The first request to fail becomes the leader and performs the exchange;
// requests failing while it runs are queued and replayed with the new access
// token once it completes, or all rejected with the same error if it fails.
//
// A coordinator must be shared by every client that talks to the same
// session; it is safe for concurrent use.
type RefreshCoordinator struct {
	store           CredentialStore
	backend         AuthBackend
	replayer        Replayer
	exchangeURL     string
	exchangeTimeout time.Duration
	logger          logger.LogManager
	metrics         *Metrics
	tracer          trace.Tracer

	mu         sync.Mutex
	refreshing bool
	queue      []chan refreshResult
}

// RefreshOption configures a RefreshCoordinator.
type RefreshOption func(*RefreshCoordinator)

// WithExchangeURL names the token endpoint. Failures of calls to it never
// start a refresh.
func WithExchangeURL(u string) RefreshOption {
	return func(rc *RefreshCoordinator) {
		rc.exchangeURL = normalizeURL(u)
	}
}

// WithExchangeTimeout bounds a single exchange.
func WithExchangeTimeout(d time.Duration) RefreshOption {
	return func(rc *RefreshCoordinator) {
		if d > 0 {
			rc.exchangeTimeout = d
		}
	}
}

func WithRefreshLogger(l logger.LogManager) RefreshOption {
	return func(rc *RefreshCoordinator) {
		rc.logger = l
	}
}

func WithRefreshMetrics(m *Metrics) RefreshOption {
	return func(rc *RefreshCoordinator) {
		rc.metrics = m
	}
}

func WithTracer(t trace.Tracer) RefreshOption {
	return func(rc *RefreshCoordinator) {
		rc.tracer = t
	}
}

func NewRefreshCoordinator(store CredentialStore, backend AuthBackend, replayer Replayer, opts ...RefreshOption) *RefreshCoordinator {
	rc := &RefreshCoordinator{
		store:           store,
		backend:         backend,
		replayer:        replayer,
		exchangeTimeout: defaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(rc)
	}
	rc.logger = logger.OrNop(rc.logger)
	if rc.tracer == nil {
		rc.tracer = otel.Tracer("github.com/milan604/apiclient/pkg/http")
	}
	return rc
}

// Hook returns the coordinator as a client error hook.
func (rc *RefreshCoordinator) Hook() ErrorHook {
	return rc.HandleAuthFailure
}

// HandleAuthFailure recovers a call that failed with 401. Any other error, a
// request that was already retried, or a failure of the token endpoint itself
// is returned unchanged.
func (rc *RefreshCoordinator) HandleAuthFailure(ctx context.Context, err error) (*Response, error) {
	re, ok := AsRequestError(err)
	if !ok || re.Request == nil || re.StatusCode() != http.StatusUnauthorized {
		return nil, err
	}
	req := re.Request
	if req.Retried || rc.isExchange(req.URL) {
		return nil, err
	}
	req.Retried = true

	rc.mu.Lock()
	if rc.refreshing {
		ch := make(chan refreshResult, 1)
		rc.queue = append(rc.queue, ch)
		rc.mu.Unlock()
		rc.metrics.addWaiters(1)
		rc.logger.DebugFCtx(ctx, "refresh in flight, queued %s %s", req.Method, req.URL)
		return rc.wait(ctx, req, ch)
	}
	rc.refreshing = true
	rc.mu.Unlock()

	token, rerr := rc.refresh(ctx)
	if rerr != nil {
		return nil, rerr
	}
	return rc.replay(ctx, req, token)
}

func (rc *RefreshCoordinator) wait(ctx context.Context, req *PendingRequest, ch <-chan refreshResult) (*Response, error) {
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		return rc.replay(ctx, req, res.token)
	case <-ctx.Done():
		// the cycle still settles the buffered channel; nobody reads it
		return nil, &RequestError{Request: req, Err: ctx.Err(), Sent: true}
	}
}

func (rc *RefreshCoordinator) replay(ctx context.Context, req *PendingRequest, token string) (*Response, error) {
	req.Header.Set(HeaderAuthorization, BearerPrefix+token)
	return rc.replayer.Replay(ctx, req)
}

// refresh runs one exchange cycle as leader and settles every queued waiter.
func (rc *RefreshCoordinator) refresh(ctx context.Context) (string, error) {
	start := time.Now()

	// waiters depend on this exchange, so the leader's cancellation must not
	// abort it
	xctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.exchangeTimeout)
	defer cancel()
	xctx, span := rc.tracer.Start(xctx, "token.refresh")
	defer span.End()

	tokens, err := rc.exchange(xctx)
	if err != nil {
		rerr := apperr.New(apperr.ErrorCodeRefreshFailed).Wrap(err)
		rc.logger.WarnFCtx(ctx, "token refresh failed, signing out: %v", err)
		rc.signOut(ctx)
		n := rc.settle(refreshResult{err: rerr})
		observability.AddSpanAttributes(xctx, attribute.Int("refresh.waiters", n))
		observability.RecordSpanError(xctx, err)
		rc.metrics.observeRefresh("failure", time.Since(start))
		return "", rerr
	}

	n := rc.settle(refreshResult{token: tokens.AccessToken})
	observability.AddSpanAttributes(xctx, attribute.Int("refresh.waiters", n))
	rc.metrics.observeRefresh("success", time.Since(start))
	rc.logger.InfoFCtx(ctx, "access token refreshed, replaying %d queued requests", n)
	return tokens.AccessToken, nil
}

// signOut ends the session on its own deadline; the exchange context may
// already be past its own.
func (rc *RefreshCoordinator) signOut(ctx context.Context) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.exchangeTimeout)
	defer cancel()
	if err := rc.store.SignOut(sctx); err != nil {
		rc.logger.ErrorFCtx(ctx, "sign out after failed refresh: %v", err)
	}
}

func (rc *RefreshCoordinator) exchange(ctx context.Context) (*credentials.TokenSet, error) {
	refreshToken, err := rc.store.RefreshToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("read refresh token: %w", err)
	}
	tokens, err := rc.backend.ExchangeRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if tokens == nil || tokens.AccessToken == "" {
		return nil, errors.New("token exchange returned no access token")
	}
	if err := rc.store.SetCredentials(ctx, *tokens); err != nil {
		return nil, fmt.Errorf("store credentials: %w", err)
	}
	return tokens, nil
}

// settle hands res to every queued waiter and ends the cycle. Draining and
// clearing the flag happen under one lock so a 401 arriving meanwhile either
// joins this queue or starts a new cycle.
func (rc *RefreshCoordinator) settle(res refreshResult) int {
	rc.mu.Lock()
	queue := rc.queue
	rc.queue = nil
	for _, ch := range queue {
		ch <- res
	}
	rc.refreshing = false
	rc.mu.Unlock()

	rc.metrics.addWaiters(-len(queue))
	return len(queue)
}

func (rc *RefreshCoordinator) isRefreshing() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.refreshing
}

func (rc *RefreshCoordinator) isExchange(raw string) bool {
	return rc.exchangeURL != "" && normalizeURL(raw) == rc.exchangeURL
}

// normalizeURL drops query, fragment and trailing slash.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSuffix(raw, "/")
	}
	u.RawQuery, u.Fragment = "", ""
	u.Host = strings.ToLower(u.Host)
	u.Scheme = strings.ToLower(u.Scheme)
	return strings.TrimSuffix(u.String(), "/")
}
