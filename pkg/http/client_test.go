package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okTransport(seen *[]*PendingRequest) TransportFunc {
	return func(_ context.Context, req *PendingRequest) (*Response, error) {
		if seen != nil {
			*seen = append(*seen, req.Clone())
		}
		return &Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{HeaderContentType: []string{"application/json"}},
			Body:       []byte(`{"user_id":1}`),
		}, nil
	}
}

func statusTransport(code int) TransportFunc {
	return func(_ context.Context, req *PendingRequest) (*Response, error) {
		return &Response{StatusCode: code, Header: http.Header{}}, nil
	}
}

func TestHooksRunInRegistrationOrder(t *testing.T) {
	var order []string
	client := NewClient(
		WithTransport(TransportFunc(func(_ context.Context, req *PendingRequest) (*Response, error) {
			order = append(order, "send")
			return &Response{StatusCode: http.StatusOK, Header: http.Header{}}, nil
		})),
		WithRequestHook(func(context.Context, *PendingRequest) error { order = append(order, "req1"); return nil }),
		WithRequestHook(func(context.Context, *PendingRequest) error { order = append(order, "req2"); return nil }),
		WithResponseHook(func(context.Context, *Response) error { order = append(order, "resp1"); return nil }),
		WithResponseHook(func(context.Context, *Response) error { order = append(order, "resp2"); return nil }),
		WithErrorHook(func(_ context.Context, err error) (*Response, error) { order = append(order, "err"); return nil, err }),
	)

	_, err := client.Get(context.Background(), "https://api.example.com/x")
	require.NoError(t, err)
	assert.Equal(t, []string{"req1", "req2", "send", "resp1", "resp2"}, order)
}

func TestDoLeavesCallerRequestUntouched(t *testing.T) {
	var seen []*PendingRequest
	client := NewClient(
		WithTransport(okTransport(&seen)),
		WithBaseURL("https://api.example.com/v1"),
		WithRequestHook(KeyCaseHook(SnakeCamel{})),
		WithRequestHook(func(_ context.Context, req *PendingRequest) error {
			req.Header.Set("X-Extra", "1")
			return nil
		}),
	)

	req := NewRequest(http.MethodPost, "users", []byte(`{"firstName":"Ada"}`))
	req.Query = url.Values{"pageSize": {"10"}}

	_, err := client.Do(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "users", req.URL)
	assert.Equal(t, `{"firstName":"Ada"}`, string(req.Body))
	assert.Empty(t, req.Header.Get("X-Extra"))
	assert.Equal(t, "10", req.Query.Get("pageSize"))
	assert.False(t, req.Retried)

	require.Len(t, seen, 1)
	assert.Equal(t, "https://api.example.com/v1/users", seen[0].URL)
	assert.Equal(t, "10", seen[0].Query.Get("page_size"))
	assert.JSONEq(t, `{"first_name":"Ada"}`, string(seen[0].Body))
	assert.Equal(t, "1", seen[0].Header.Get("X-Extra"))
}

func TestResolveURL(t *testing.T) {
	client := NewClient(WithBaseURL("https://api.example.com/v1/"))

	assert.Equal(t, "https://api.example.com/v1/users", client.ResolveURL("/users"))
	assert.Equal(t, "https://api.example.com/v1/users?x=1", client.ResolveURL("users?x=1"))
	assert.Equal(t, "https://other.example.com/a", client.ResolveURL("https://other.example.com/a"))
	assert.Equal(t, "users", NewClient().ResolveURL("users"))
}

func TestNonSuccessStatusGoesToErrorHooks(t *testing.T) {
	var got error
	client := NewClient(
		WithTransport(statusTransport(http.StatusNotFound)),
		WithResponseHook(func(context.Context, *Response) error {
			t.Fatal("response hooks must not run for a 404")
			return nil
		}),
		WithErrorHook(func(_ context.Context, err error) (*Response, error) {
			got = err
			return nil, err
		}),
	)

	_, err := client.Get(context.Background(), "https://api.example.com/missing")
	require.Error(t, err)
	assert.Same(t, got, err)

	re, ok := AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, re.StatusCode())
	assert.True(t, re.Sent)
}

func TestErrorHookRecoversAndStopsChain(t *testing.T) {
	recovered := &Response{StatusCode: http.StatusOK}
	client := NewClient(
		WithTransport(statusTransport(http.StatusBadGateway)),
		WithErrorHook(func(context.Context, error) (*Response, error) { return recovered, nil }),
		WithErrorHook(func(_ context.Context, err error) (*Response, error) {
			t.Fatal("chain must stop after recovery")
			return nil, err
		}),
	)

	resp, err := client.Get(context.Background(), "https://api.example.com/x")
	require.NoError(t, err)
	assert.Same(t, recovered, resp)
}

func TestErrorHooksCanReplaceTheError(t *testing.T) {
	replaced := errors.New("replaced")
	var second error
	client := NewClient(
		WithTransport(statusTransport(http.StatusInternalServerError)),
		WithErrorHook(func(context.Context, error) (*Response, error) { return nil, replaced }),
		WithErrorHook(func(_ context.Context, err error) (*Response, error) { second = err; return nil, err }),
	)

	_, err := client.Get(context.Background(), "https://api.example.com/x")
	assert.Same(t, replaced, err)
	assert.Same(t, replaced, second)
}

func TestReplaySkipsErrorHooks(t *testing.T) {
	client := NewClient(
		WithTransport(statusTransport(http.StatusUnauthorized)),
		WithErrorHook(func(_ context.Context, err error) (*Response, error) {
			t.Fatal("replay must not enter the error chain")
			return nil, err
		}),
	)

	req := NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	req.Retried = true
	_, err := client.Replay(context.Background(), req)

	re, ok := AsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, re.StatusCode())
	assert.Same(t, req, re.Request)
}

func TestRequestHookFailureIsNotSent(t *testing.T) {
	hookErr := errors.New("no token")
	client := NewClient(
		WithTransport(TransportFunc(func(context.Context, *PendingRequest) (*Response, error) {
			t.Fatal("transport must not be called")
			return nil, nil
		})),
		WithRequestHook(func(context.Context, *PendingRequest) error { return hookErr }),
	)

	_, err := client.Get(context.Background(), "https://api.example.com/x")
	re, ok := AsRequestError(err)
	require.True(t, ok)
	assert.False(t, re.Sent)
	assert.Nil(t, re.Response)
	assert.ErrorIs(t, err, hookErr)
}

func TestTransportErrorHasNoResponse(t *testing.T) {
	netErr := errors.New("connection reset")
	client := NewClient(WithTransport(TransportFunc(func(context.Context, *PendingRequest) (*Response, error) {
		return nil, netErr
	})))

	_, err := client.Get(context.Background(), "https://api.example.com/x")
	re, ok := AsRequestError(err)
	require.True(t, ok)
	assert.True(t, re.Sent)
	assert.Nil(t, re.Response)
	assert.ErrorIs(t, err, netErr)
}

func TestResponseHookFailureKeepsResponse(t *testing.T) {
	client := NewClient(
		WithTransport(TransportFunc(func(context.Context, *PendingRequest) (*Response, error) {
			return &Response{StatusCode: http.StatusOK, Header: http.Header{HeaderContentType: {"application/json"}}, Body: []byte(`{not json`)}, nil
		})),
		WithResponseHook(ResponseKeyCaseHook(SnakeCamel{})),
	)

	_, err := client.Get(context.Background(), "https://api.example.com/x")
	re, ok := AsRequestError(err)
	require.True(t, ok)
	require.NotNil(t, re.Response)
	assert.Equal(t, http.StatusOK, re.Response.StatusCode)
	assert.Error(t, re.Err)
}

func TestPostMarshalFailureRunsErrorHooks(t *testing.T) {
	var hooked bool
	client := NewClient(
		WithTransport(okTransport(nil)),
		WithErrorHook(func(_ context.Context, err error) (*Response, error) { hooked = true; return nil, err }),
	)

	_, err := client.Post(context.Background(), "https://api.example.com/x", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.True(t, hooked)

	re, ok := AsRequestError(err)
	require.True(t, ok)
	assert.False(t, re.Sent)
}

func TestGetJSONDecodesCamelCase(t *testing.T) {
	client := NewClient(
		WithTransport(okTransport(nil)),
		WithResponseHook(ResponseKeyCaseHook(SnakeCamel{})),
	)

	var out struct {
		UserID int `json:"userId"`
	}
	require.NoError(t, client.GetJSON(context.Background(), "https://api.example.com/x", &out))
	assert.Equal(t, 1, out.UserID)
}

func TestNilRequest(t *testing.T) {
	_, err := NewClient(WithTransport(okTransport(nil))).Do(context.Background(), nil)
	assert.Error(t, err)
}
