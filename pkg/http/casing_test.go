package http

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformJSONKeysNested(t *testing.T) {
	in := []byte(`{"userId":7,"accountSettings":{"twoFactorEnabled":true},"recentOrders":[{"orderId":1,"lineItems":[{"unitPrice":9.99}]}],"tags":["keepMe"]}`)

	out, ok := TransformJSONKeys(in, SnakeCamel{}.ToWire)
	require.True(t, ok)
	assert.JSONEq(t, `{"user_id":7,"account_settings":{"two_factor_enabled":true},"recent_orders":[{"order_id":1,"line_items":[{"unit_price":9.99}]}],"tags":["keepMe"]}`, string(out))

	back, ok := TransformJSONKeys(out, SnakeCamel{}.FromWire)
	require.True(t, ok)
	assert.JSONEq(t, string(in), string(back))
}

func TestTransformJSONKeysKeepsNumbers(t *testing.T) {
	out, ok := TransformJSONKeys([]byte(`{"bigId":12345678901234567890}`), SnakeCamel{}.ToWire)
	require.True(t, ok)
	assert.Equal(t, `{"big_id":12345678901234567890}`, string(out))
}

func TestTransformJSONKeysScalarsAndInvalid(t *testing.T) {
	out, ok := TransformJSONKeys([]byte(`"plainString"`), SnakeCamel{}.ToWire)
	require.True(t, ok)
	assert.Equal(t, `"plainString"`, string(out))

	_, ok = TransformJSONKeys([]byte(`{"a":`), SnakeCamel{}.ToWire)
	assert.False(t, ok)

	_, ok = TransformJSONKeys([]byte(`{} {}`), SnakeCamel{}.ToWire)
	assert.False(t, ok)
}

func TestKeyCaseHook(t *testing.T) {
	hook := KeyCaseHook(SnakeCamel{})

	t.Run("json body and query", func(t *testing.T) {
		req := NewRequest(http.MethodPost, "https://api.example.com/x", []byte(`{"firstName":"Ada"}`))
		req.Query = url.Values{"sortBy": {"createdAt"}}
		require.NoError(t, hook(context.Background(), req))

		assert.JSONEq(t, `{"first_name":"Ada"}`, string(req.Body))
		assert.Equal(t, "createdAt", req.Query.Get("sort_by"))
		assert.Empty(t, req.Query.Get("sortBy"))
	})

	t.Run("idempotent", func(t *testing.T) {
		req := NewRequest(http.MethodPost, "https://api.example.com/x", []byte(`{"firstName":"Ada"}`))
		require.NoError(t, hook(context.Background(), req))
		require.NoError(t, hook(context.Background(), req))
		assert.JSONEq(t, `{"first_name":"Ada"}`, string(req.Body))
	})

	t.Run("multipart untouched", func(t *testing.T) {
		body := []byte("--x\r\nContent-Disposition: form-data; name=\"fileName\"\r\n\r\na\r\n--x--")
		req := NewRequest(http.MethodPost, "https://api.example.com/x", body)
		req.Header.Set(HeaderContentType, "multipart/form-data; boundary=x")
		require.NoError(t, hook(context.Background(), req))
		assert.Equal(t, body, req.Body)
	})

	t.Run("non json content type untouched", func(t *testing.T) {
		req := NewRequest(http.MethodPost, "https://api.example.com/x", []byte(`{"firstName":"Ada"}`))
		req.Header.Set(HeaderContentType, "text/plain")
		require.NoError(t, hook(context.Background(), req))
		assert.Equal(t, `{"firstName":"Ada"}`, string(req.Body))
	})

	t.Run("invalid json sent as is", func(t *testing.T) {
		req := NewRequest(http.MethodPost, "https://api.example.com/x", []byte(`not json`))
		require.NoError(t, hook(context.Background(), req))
		assert.Equal(t, "not json", string(req.Body))
	})
}

func TestResponseKeyCaseHook(t *testing.T) {
	hook := ResponseKeyCaseHook(SnakeCamel{})

	resp := &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{HeaderContentType: {"application/json; charset=utf-8"}},
		Body:       []byte(`{"display_name":"Ada","account_settings":{"preferred_locale":"en"}}`),
	}
	require.NoError(t, hook(context.Background(), resp))
	assert.JSONEq(t, `{"displayName":"Ada","accountSettings":{"preferredLocale":"en"}}`, string(resp.Body))

	text := &Response{StatusCode: http.StatusOK, Header: http.Header{HeaderContentType: {"text/plain"}}, Body: []byte("user_name")}
	require.NoError(t, hook(context.Background(), text))
	assert.Equal(t, "user_name", string(text.Body))

	bad := &Response{StatusCode: http.StatusOK, Header: http.Header{HeaderContentType: {"application/problem+json"}}, Body: []byte("{")}
	assert.Error(t, hook(context.Background(), bad))
}

type staticToken string

func (s staticToken) AccessToken(context.Context) (string, error) { return string(s), nil }

func TestDefaultHeadersHook(t *testing.T) {
	hook := DefaultHeadersHook(staticToken("T1"))

	req := NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	require.NoError(t, hook(context.Background(), req))
	assert.Equal(t, "application/json", req.Header.Get(HeaderContentType))
	assert.Equal(t, "Bearer T1", req.Header.Get(HeaderAuthorization))

	preset := NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	preset.Header.Set(HeaderAuthorization, "Bearer mine")
	preset.Header.Set(HeaderContentType, "text/csv")
	require.NoError(t, hook(context.Background(), preset))
	assert.Equal(t, "Bearer mine", preset.Header.Get(HeaderAuthorization))
	assert.Equal(t, "text/csv", preset.Header.Get(HeaderContentType))

	anon := NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	require.NoError(t, DefaultHeadersHook(&fakeStore{})(context.Background(), anon))
	assert.Empty(t, anon.Header.Get(HeaderAuthorization))
}

func TestRequestIDHook(t *testing.T) {
	hook := RequestIDHook()

	req := NewRequest(http.MethodGet, "https://api.example.com/x", nil)
	require.NoError(t, hook(context.Background(), req))
	id := req.Header.Get(HeaderRequestID)
	assert.Len(t, id, 36)

	// a replay keeps its id
	require.NoError(t, hook(context.Background(), req))
	assert.Equal(t, id, req.Header.Get(HeaderRequestID))
}

func TestRedactHeaders(t *testing.T) {
	out := redactHeaders(http.Header{"Authorization": {"Bearer secret"}, "Accept": {"*/*"}})
	assert.Equal(t, []string{"[REDACTED]"}, out["Authorization"])
	assert.Equal(t, []string{"*/*"}, out["Accept"])
	assert.Equal(t, "abc...", truncate([]byte("abcdef"), 3))
}
