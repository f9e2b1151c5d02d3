package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	cfg.BrowserEnabled = false
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestDoReturnsDirectResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	resp, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, TransportDirect, resp.Transport)
	require.Contains(t, string(resp.Body), "ok")
}

func TestDoFallsBackToProxyForMitigatedJSON(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer target.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Rendered page:\n```json\n{\"products\":[{\"title\":\"Bottle\"}]}\n```"))
	}))
	defer proxy.Close()

	c := newTestClient(t, Config{
		ProxyEnabled: true,
		ProxyBaseURL: proxy.URL,
	})
	resp, err := c.Do(context.Background(), Request{
		URL:     target.URL + "/products.json",
		Headers: http.Header{"Accept": {"application/json"}},
	})
	require.NoError(t, err)
	require.Equal(t, TransportProxy, resp.Transport)
	require.JSONEq(t, `{"products":[{"title":"Bottle"}]}`, string(resp.Body))
}

func TestDoReturnsLastResponseWhenEveryStageMitigated(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer target.Close()

	// HTML request: the proxy stage is skipped, so the chain terminates in
	// the mitigated response rather than an error.
	c := newTestClient(t, Config{})
	resp, err := c.Do(context.Background(), Request{URL: target.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDoDoesNotRetryNonGET(t *testing.T) {
	t.Parallel()

	calls := 0
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer target.Close()

	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("proxy must not be called for non-GET")
	}))
	defer proxy.Close()

	c := newTestClient(t, Config{ProxyEnabled: true, ProxyBaseURL: proxy.URL})
	resp, err := c.Do(context.Background(), Request{
		URL:     target.URL,
		Method:  http.MethodPost,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, 1, calls)
}

func TestDoErrorsWhenPrimaryThrowsForNonGET(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, Config{Timeout: 500 * time.Millisecond})
	_, err := c.Do(context.Background(), Request{
		URL:    "http://127.0.0.1:1/unreachable",
		Method: http.MethodDelete,
	})
	require.Error(t, err)
}

func TestDoSendsConditionalHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	c := newTestClient(t, Config{})
	resp, err := c.Do(context.Background(), Request{
		URL:     srv.URL,
		Headers: http.Header{"If-None-Match": {`"v1"`}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestMitigatedSignals(t *testing.T) {
	t.Parallel()

	require.True(t, Mitigated(Response{StatusCode: 403, Headers: http.Header{}}))
	require.True(t, Mitigated(Response{StatusCode: 429, Headers: http.Header{}}))
	require.True(t, Mitigated(Response{StatusCode: 503, Headers: http.Header{}}))
	require.True(t, Mitigated(Response{
		StatusCode: 200,
		Headers:    http.Header{"Cf-Mitigated": {"challenge"}},
	}))
	require.False(t, Mitigated(Response{StatusCode: 200, Headers: http.Header{}}))
	require.False(t, Mitigated(Response{StatusCode: 404, Headers: http.Header{}}))
}

func TestShapeMismatch(t *testing.T) {
	t.Parallel()

	html := Response{Headers: http.Header{"Content-Type": {"text/html; charset=utf-8"}}}
	require.True(t, shapeMismatch(true, html))
	require.False(t, shapeMismatch(false, html))

	jsonResp := Response{Headers: http.Header{"Content-Type": {"application/json"}}}
	require.False(t, shapeMismatch(true, jsonResp))
}

func TestWantsJSON(t *testing.T) {
	t.Parallel()

	require.True(t, wantsJSON(Request{URL: "https://x.com/products.json?page=2"}))
	require.True(t, wantsJSON(Request{
		URL:     "https://x.com/api",
		Headers: http.Header{"Accept": {"application/json"}},
	}))
	require.False(t, wantsJSON(Request{URL: "https://x.com/products/bottle"}))
}
