// Package fetch performs a single logical HTTP fetch through an ordered
// fallback chain: direct request, then a headless-browser fetch under a
// standard browser user agent, then a text-extraction proxy for JSON-seeking
// requests. Each stage may fail silently and fall through to the next; the
// chain only errors when every stage fails.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/metrics"
)

// Config controls fetch behavior for one store run.
type Config struct {
	Timeout          time.Duration
	UserAgent        string
	BrowserUserAgent string
	BrowserEnabled   bool
	BrowserParallel  int
	ProxyEnabled     bool
	ProxyBaseURL     string
	MaxBodyBytes     int64
}

// Request describes one logical fetch. Conditional validators travel in
// Headers (If-None-Match / If-Modified-Since) set by the caller.
type Request struct {
	URL     string
	Method  string
	Headers http.Header
}

// Response is the outcome of the chain.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Transport  string
}

const (
	TransportDirect  = "direct"
	TransportBrowser = "browser"
	TransportProxy   = "proxy"
)

const defaultBrowserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Client runs the fallback chain. Safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	browser *Browser
	logger  *zap.Logger
}

// NewClient builds a Client. The headless browser allocator is created only
// when BrowserEnabled is set; Close releases it.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BrowserUserAgent == "" {
		cfg.BrowserUserAgent = defaultBrowserUA
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
	if cfg.BrowserEnabled {
		b, err := NewBrowser(BrowserConfig{
			UserAgent:   cfg.BrowserUserAgent,
			MaxParallel: cfg.BrowserParallel,
			NavTimeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("start browser: %w", err)
		}
		c.browser = b
	}
	return c, nil
}

// Close releases the headless browser, if any.
func (c *Client) Close() {
	if c.browser != nil {
		c.browser.Close()
	}
}

// Do executes the chain for one request. Destructive methods are never
// retried blindly: a non-GET that throws is returned as-is.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	jsonSeeking := wantsJSON(req)

	resp, primaryErr := c.direct(ctx, req)
	if primaryErr == nil && !Mitigated(resp) && !shapeMismatch(jsonSeeking, resp) {
		return resp, nil
	}
	if req.Method != http.MethodGet {
		if primaryErr != nil {
			return Response{}, primaryErr
		}
		return resp, nil
	}

	last := resp
	hasLast := primaryErr == nil
	if primaryErr != nil {
		c.logger.Debug("direct fetch failed, falling back",
			zap.String("url", req.URL), zap.Error(primaryErr))
	}

	if c.browser != nil {
		bresp, err := c.browserFetch(ctx, req)
		if err == nil {
			if !Mitigated(bresp) && !shapeMismatch(jsonSeeking, bresp) {
				return bresp, nil
			}
			last = bresp
			hasLast = true
		} else {
			c.logger.Debug("browser fetch failed",
				zap.String("url", req.URL), zap.Error(err))
		}
	}

	if jsonSeeking && c.cfg.ProxyEnabled && c.cfg.ProxyBaseURL != "" {
		presp, err := c.proxyFetch(ctx, req)
		if err == nil {
			return presp, nil
		}
		c.logger.Debug("proxy fetch failed",
			zap.String("url", req.URL), zap.Error(err))
	}

	if hasLast {
		return last, nil
	}
	if primaryErr != nil {
		return Response{}, fmt.Errorf("all fetch stages failed: %w", primaryErr)
	}
	return Response{}, fmt.Errorf("all fetch stages failed for %s", req.URL)
}

func (c *Client) direct(ctx context.Context, req Request) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("direct fetch: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	metrics.ObserveFetch(TransportDirect, httpResp.StatusCode)
	return Response{
		URL:        httpResp.Request.URL.String(),
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Duration:   time.Since(start),
		Transport:  TransportDirect,
	}, nil
}

func (c *Client) browserFetch(ctx context.Context, req Request) (Response, error) {
	resp, err := c.browser.Fetch(ctx, req.URL)
	if err != nil {
		return Response{}, err
	}
	metrics.ObserveFetch(TransportBrowser, resp.StatusCode)
	if wantsJSON(req) {
		// The rendered DOM wraps raw JSON responses in <pre>; recover it.
		if payload, jerr := ExtractJSON(string(resp.Body)); jerr == nil {
			resp.Body = payload
			resp.Headers.Set("Content-Type", "application/json")
		}
	}
	return resp, nil
}

// proxyFetch renders the page through the text-extraction proxy and recovers
// a best-effort JSON payload from the returned text.
func (c *Client) proxyFetch(ctx context.Context, req Request) (Response, error) {
	proxyURL := strings.TrimSuffix(c.cfg.ProxyBaseURL, "/") + "/" + req.URL
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, proxyURL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build proxy request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/plain")

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("proxy fetch: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("proxy fetch: status %d", httpResp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read proxy body: %w", err)
	}
	payload, err := ExtractJSON(string(body))
	if err != nil {
		return Response{}, fmt.Errorf("recover json from proxy text: %w", err)
	}
	metrics.ObserveFetch(TransportProxy, httpResp.StatusCode)
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return Response{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       payload,
		Duration:   time.Since(start),
		Transport:  TransportProxy,
	}, nil
}

func wantsJSON(req Request) bool {
	if strings.Contains(strings.ToLower(req.Headers.Get("Accept")), "application/json") {
		return true
	}
	path := req.URL
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	return strings.HasSuffix(strings.ToLower(path), ".json")
}
