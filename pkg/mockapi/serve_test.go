package mockapi

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeShutsDownWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := New(WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + StatusPath + "204")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestHoldExchangesParksTokenRequests(t *testing.T) {
	s := New()
	ts, err := s.IssueSession()
	require.NoError(t, err)
	release := s.HoldExchanges()

	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {ts.RefreshToken}}
	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, TokenPath, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		done <- do(t, s, req).Code
	}()

	require.Eventually(t, func() bool { return s.Exchanges() == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("token request answered while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()
	assert.Equal(t, http.StatusOK, <-done)
}
