package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/milan604/apiclient/pkg/logger"
	"github.com/milan604/apiclient/pkg/version"
)

var (
	// ErrBuildRequest marks a request that could not be turned into an
	// *http.Request. Such requests never reach the wire.
	ErrBuildRequest = errors.New("failed to build request")
	// ErrBodyTooLarge is returned when a response exceeds the body limit.
	ErrBodyTooLarge = errors.New("response body too large")
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

const defaultMaxBodyBytes = 10 << 20

// HTTPTransport sends requests with a net/http client and buffers the
// response body.
type HTTPTransport struct {
	client       *http.Client
	maxBodyBytes int64
	userAgent    string
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTimeout sets the whole-request timeout of the underlying client.
func WithTimeout(d time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		t.client.Timeout = d
	}
}

// WithMaxBodyBytes bounds how much of a response body is read.
func WithMaxBodyBytes(n int64) TransportOption {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.maxBodyBytes = n
		}
	}
}

// WithUserAgent overrides the default User-Agent.
func WithUserAgent(ua string) TransportOption {
	return func(t *HTTPTransport) {
		t.userAgent = ua
	}
}

func NewHTTPTransport(opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:       &http.Client{Timeout: 30 * time.Second},
		maxBodyBytes: defaultMaxBodyBytes,
		userAgent:    version.UserAgent("apiclient"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Timeout is the configured whole-request timeout.
func (t *HTTPTransport) Timeout() time.Duration { return t.client.Timeout }

func (t *HTTPTransport) Send(ctx context.Context, req *PendingRequest) (*Response, error) {
	target, err := req.FullURL()
	if err != nil {
		return nil, &RequestError{Request: req, Err: fmt.Errorf("%w: %v", ErrBuildRequest, err)}
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &RequestError{Request: req, Err: fmt.Errorf("%w: %v", ErrBuildRequest, err)}
	}
	hreq.Header = req.Header.Clone()
	if hreq.Header.Get("User-Agent") == "" && t.userAgent != "" {
		hreq.Header.Set("User-Agent", t.userAgent)
	}

	hresp, err := t.client.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(hresp.Body, t.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > t.maxBodyBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, t.maxBodyBytes)
	}
	return &Response{StatusCode: hresp.StatusCode, Header: hresp.Header, Body: data, Request: req}, nil
}

// BreakerTransport wraps a transport in a circuit breaker. Transport errors
// and 5xx responses count as failures; 5xx responses are still returned to the
// caller as responses.
type BreakerTransport struct {
	next Transport
	cb   *gobreaker.CircuitBreaker[*Response]
}

// serverError carries a 5xx response through the breaker so it is counted as
// a failure.
type serverError struct{ resp *Response }

func (e *serverError) Error() string { return fmt.Sprintf("server error %d", e.resp.StatusCode) }

// NewBreakerTransport opens after maxFailures consecutive failures and probes
// again after openTimeout.
func NewBreakerTransport(next Transport, name string, maxFailures uint32, openTimeout time.Duration, log logger.LogManager) *BreakerTransport {
	log = logger.OrNop(log)
	if maxFailures == 0 {
		maxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// the caller giving up says nothing about upstream health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WarnF("circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &BreakerTransport{next: next, cb: gobreaker.NewCircuitBreaker[*Response](st)}
}

// State is the current breaker state.
func (t *BreakerTransport) State() gobreaker.State { return t.cb.State() }

func (t *BreakerTransport) Send(ctx context.Context, req *PendingRequest) (*Response, error) {
	resp, err := t.cb.Execute(func() (*Response, error) {
		resp, err := t.next.Send(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, &serverError{resp: resp}
		}
		return resp, nil
	})
	var se *serverError
	switch {
	case errors.As(err, &se):
		return se.resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return resp, err
}

// RateLimitedTransport waits on a token bucket before each send.
type RateLimitedTransport struct {
	next    Transport
	limiter *rate.Limiter
}

func NewRateLimitedTransport(next Transport, rps float64, burst int) *RateLimitedTransport {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedTransport{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *RateLimitedTransport) Send(ctx context.Context, req *PendingRequest) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, &RequestError{Request: req, Err: fmt.Errorf("rate limit: %w", err)}
	}
	return t.next.Send(ctx, req)
}
