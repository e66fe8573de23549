package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransportSend(t *testing.T) {
	var gotUA, gotQuery, gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get(HeaderAuthorization)
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set(HeaderContentType, "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(WithTimeout(time.Second))
	req := NewRequest(http.MethodPost, srv.URL+"/items?a=1", []byte(`{"x":1}`))
	req.Query.Set("b", "2")
	req.Header.Set(HeaderAuthorization, "Bearer T1")

	resp, err := tr.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"id":1}`, string(resp.Body))
	assert.Same(t, req, resp.Request)
	assert.Equal(t, "application/json", resp.Header.Get(HeaderContentType))

	assert.Equal(t, "a=1&b=2", gotQuery)
	assert.Equal(t, `{"x":1}`, gotBody)
	assert.Equal(t, "Bearer T1", gotAuth)
	assert.True(t, strings.HasPrefix(gotUA, "apiclient/"))
	assert.Equal(t, time.Second, tr.Timeout())
}

func TestHTTPTransportBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(WithMaxBodyBytes(16))
	_, err := tr.Send(context.Background(), NewRequest(http.MethodGet, srv.URL, nil))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestHTTPTransportBuildError(t *testing.T) {
	tr := NewHTTPTransport()
	_, err := tr.Send(context.Background(), NewRequest(http.MethodGet, "http://[::1", nil))

	re, ok := AsRequestError(err)
	require.True(t, ok)
	assert.False(t, re.Sent)
	assert.ErrorIs(t, err, ErrBuildRequest)
}

func TestHTTPTransportTimeoutThroughClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	client := NewClient(WithTransport(NewHTTPTransport(WithTimeout(50 * time.Millisecond))))
	_, err := client.Get(context.Background(), srv.URL)

	re, ok := AsRequestError(err)
	require.True(t, ok)
	assert.True(t, re.Sent)
	assert.Nil(t, re.Response)
	assert.True(t, re.Timeout())
	assert.Equal(t, "timeout", Classify(err).Code())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	next := TransportFunc(func(context.Context, *PendingRequest) (*Response, error) {
		calls++
		return &Response{StatusCode: http.StatusServiceUnavailable}, nil
	})
	br := NewBreakerTransport(next, "test", 3, time.Minute, nil)
	req := NewRequest(http.MethodGet, "https://api.example.com/x", nil)

	for i := 0; i < 3; i++ {
		resp, err := br.Send(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateOpen, br.State())

	_, err := br.Send(context.Background(), req)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 3, calls)
}

func TestBreakerIgnoresClientErrorsAndCancellation(t *testing.T) {
	var next TransportFunc = func(ctx context.Context, _ *PendingRequest) (*Response, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Response{StatusCode: http.StatusUnauthorized}, nil
	}
	br := NewBreakerTransport(next, "test", 2, time.Minute, nil)
	req := NewRequest(http.MethodGet, "https://api.example.com/x", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, _ = br.Send(context.Background(), req)
		_, err := br.Send(ctx, req)
		assert.True(t, errors.Is(err, context.Canceled))
	}
	assert.Equal(t, gobreaker.StateClosed, br.State())
}

func TestRateLimitedTransport(t *testing.T) {
	var next TransportFunc = func(context.Context, *PendingRequest) (*Response, error) {
		return &Response{StatusCode: http.StatusOK}, nil
	}
	rl := NewRateLimitedTransport(next, 1, 1)
	req := NewRequest(http.MethodGet, "https://api.example.com/x", nil)

	_, err := rl.Send(context.Background(), req)
	require.NoError(t, err)

	// the bucket is empty and the next token is a second away
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = rl.Send(ctx, req)

	re, ok := AsRequestError(err)
	require.True(t, ok)
	assert.False(t, re.Sent)
}
