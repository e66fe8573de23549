package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// PendingRequest is a replayable description of one outgoing call. The body
// is buffered so the request can be sent again after a token refresh.
type PendingRequest struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	Body   []byte

	// Retried is set once the request has gone through the refresh protocol.
	// A retried request that fails authentication again is not refreshed twice.
	Retried bool
}

// NewRequest builds a PendingRequest with empty header and query maps.
func NewRequest(method, rawURL string, body []byte) *PendingRequest {
	return &PendingRequest{
		Method: method,
		URL:    rawURL,
		Query:  url.Values{},
		Header: http.Header{},
		Body:   body,
	}
}

// Clone returns a deep copy.
func (r *PendingRequest) Clone() *PendingRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	c.Query = url.Values{}
	for k, v := range r.Query {
		c.Query[k] = append([]string(nil), v...)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// FullURL is URL with Query merged into its query string.
func (r *PendingRequest) FullURL() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", err
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for k, v := range r.Query {
			q[k] = append(q[k], v...)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    *PendingRequest
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RequestError describes a failed call. Response is nil when nothing came
// back; Sent is false when the request never reached the wire.
type RequestError struct {
	Request  *PendingRequest
	Response *Response
	Err      error
	Sent     bool
}

func (e *RequestError) Error() string {
	method, target := "", ""
	if e.Request != nil {
		method, target = e.Request.Method, e.Request.URL
	}
	if e.Response != nil {
		return fmt.Sprintf("%s %s: status %d", method, target, e.Response.StatusCode)
	}
	if !e.Sent {
		return fmt.Sprintf("%s %s: request not sent: %v", method, target, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", method, target, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusCode is the upstream status, or 0 without a response.
func (e *RequestError) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return e.Response.StatusCode
}

// Timeout reports whether the call failed because a deadline passed.
func (e *RequestError) Timeout() bool {
	if e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// AsRequestError unwraps err to a *RequestError.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
