package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/milan604/apiclient/pkg/logger"
)

// Client sends PendingRequests through an ordered hook pipeline:
// request hooks, the transport, then either the response hooks (2xx) or the
// error hooks (everything else).
type Client struct {
	transport     Transport
	baseURL       *url.URL
	logger        logger.LogManager
	metrics       *Metrics
	requestHooks  []RequestHook
	responseHooks []ResponseHook
	errorHooks    []ErrorHook
}

// RequestHook mutates a request before it is sent. Hooks run again when a
// request is replayed, so they must be idempotent.
type RequestHook func(ctx context.Context, req *PendingRequest) error

// ResponseHook processes a successful response.
type ResponseHook func(ctx context.Context, resp *Response) error

// ErrorHook receives a failed call. Returning a response with a nil error
// recovers the call and stops the chain; otherwise the returned error is
// passed to the next hook.
type ErrorHook func(ctx context.Context, err error) (*Response, error)

// ClientOption configures the HTTP client.
type ClientOption func(*Client)

// WithTransport sets the transport. Defaults to an HTTPTransport.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) {
		c.transport = t
	}
}

// WithBaseURL resolves relative request URLs against base.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) {
		if u, err := url.Parse(strings.TrimSuffix(base, "/") + "/"); err == nil && base != "" {
			c.baseURL = u
		}
	}
}

// WithLogger sets a logger for the client.
func WithLogger(l logger.LogManager) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics records request outcomes.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithRequestHook adds a hook that runs before each request.
func WithRequestHook(hook RequestHook) ClientOption {
	return func(c *Client) {
		c.requestHooks = append(c.requestHooks, hook)
	}
}

// WithResponseHook adds a hook that runs after each successful response.
func WithResponseHook(hook ResponseHook) ClientOption {
	return func(c *Client) {
		c.responseHooks = append(c.responseHooks, hook)
	}
}

// WithErrorHook appends a hook to the error chain.
func WithErrorHook(hook ErrorHook) ClientOption {
	return func(c *Client) {
		c.errorHooks = append(c.errorHooks, hook)
	}
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport()
	}
	c.logger = logger.OrNop(c.logger)
	return c
}

// Use appends hooks after construction. It must not be called while requests
// are in flight.
func (c *Client) Use(opts ...ClientOption) {
	for _, opt := range opts {
		opt(c)
	}
}

// ResolveURL resolves ref against the base URL.
func (c *Client) ResolveURL(ref string) string {
	if c.baseURL == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	return c.baseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(u.Path, "/"), RawQuery: u.RawQuery}).String()
}

// Do sends req. The caller's request is never mutated; the pipeline works on
// a copy.
func (c *Client) Do(ctx context.Context, req *PendingRequest) (*Response, error) {
	if req == nil {
		return nil, &RequestError{Err: errors.New("nil request")}
	}
	resp, err := c.dispatch(ctx, req.Clone())
	if err == nil {
		return resp, nil
	}
	return c.handleError(ctx, err)
}

// handleError runs the error hook chain.
func (c *Client) handleError(ctx context.Context, err error) (*Response, error) {
	var resp *Response
	for _, hook := range c.errorHooks {
		resp, err = hook(ctx, err)
		if err == nil {
			return resp, nil
		}
	}
	return nil, err
}

// Replay sends req again through the request hooks, transport and response
// hooks. Error hooks are skipped.
func (c *Client) Replay(ctx context.Context, req *PendingRequest) (*Response, error) {
	return c.dispatch(ctx, req)
}

func (c *Client) dispatch(ctx context.Context, req *PendingRequest) (*Response, error) {
	req.URL = c.ResolveURL(req.URL)
	if req.Header == nil {
		req.Header = http.Header{}
	}

	for _, hook := range c.requestHooks {
		if err := hook(ctx, req); err != nil {
			c.metrics.observeRequest(req.Method, "not_sent")
			return nil, &RequestError{Request: req, Err: fmt.Errorf("request hook failed: %w", err)}
		}
	}

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		if re, ok := AsRequestError(err); ok {
			if re.Request == nil {
				re.Request = req
			}
			c.metrics.observeRequest(req.Method, outcomeOf(re))
			return nil, re
		}
		c.metrics.observeRequest(req.Method, "no_response")
		return nil, &RequestError{Request: req, Err: err, Sent: true}
	}
	resp.Request = req

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.observeRequest(req.Method, statusClass(resp.StatusCode))
		return nil, &RequestError{Request: req, Response: resp, Sent: true}
	}

	for _, hook := range c.responseHooks {
		if err := hook(ctx, resp); err != nil {
			c.metrics.observeRequest(req.Method, "invalid_response")
			return nil, &RequestError{Request: req, Response: resp, Err: fmt.Errorf("response hook failed: %w", err), Sent: true}
		}
	}
	c.metrics.observeRequest(req.Method, statusClass(resp.StatusCode))
	return resp, nil
}

func outcomeOf(re *RequestError) string {
	switch {
	case re.Response != nil:
		return statusClass(re.Response.StatusCode)
	case !re.Sent:
		return "not_sent"
	default:
		return "no_response"
	}
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodGet, url, nil))
}

// Post performs a POST request with JSON body.
func (c *Client) Post(ctx context.Context, url string, body any) (*Response, error) {
	return c.postPutPatch(ctx, http.MethodPost, url, body)
}

// Put performs a PUT request with JSON body.
func (c *Client) Put(ctx context.Context, url string, body any) (*Response, error) {
	return c.postPutPatch(ctx, http.MethodPut, url, body)
}

// Patch performs a PATCH request with JSON body.
func (c *Client) Patch(ctx context.Context, url string, body any) (*Response, error) {
	return c.postPutPatch(ctx, http.MethodPatch, url, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodDelete, url, nil))
}

func (c *Client) postPutPatch(ctx context.Context, method, url string, body any) (*Response, error) {
	req, err := jsonRequest(method, url, body)
	if err != nil {
		return c.handleError(ctx, err)
	}
	return c.Do(ctx, req)
}

func jsonRequest(method, url string, body any) (*PendingRequest, error) {
	req := NewRequest(method, url, nil)
	if body == nil {
		return req, nil
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, &RequestError{Request: req, Err: fmt.Errorf("failed to marshal request body: %w", err)}
	}
	req.Body = b
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// DoJSON performs a request and unmarshals the JSON response.
func (c *Client) DoJSON(ctx context.Context, req *PendingRequest, v any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// GetJSON performs a GET request and unmarshals the JSON response.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	return c.DoJSON(ctx, NewRequest(http.MethodGet, url, nil), v)
}

// PostJSON performs a POST request with JSON body and unmarshals the JSON response.
func (c *Client) PostJSON(ctx context.Context, url string, body any, v any) error {
	req, err := jsonRequest(http.MethodPost, url, body)
	if err != nil {
		_, err = c.handleError(ctx, err)
		return err
	}
	return c.DoJSON(ctx, req, v)
}
