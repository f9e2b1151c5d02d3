package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserConfig controls the headless Chrome transport.
type BrowserConfig struct {
	UserAgent   string
	MaxParallel int
	NavTimeout  time.Duration
}

// Browser fetches pages through a headless Chrome subprocess. A real browser
// TLS and header fingerprint clears mitigation layers that reject plain Go
// clients.
type Browser struct {
	cfg         BrowserConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewBrowser creates the shared Chrome allocator.
func NewBrowser(cfg BrowserConfig) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (b *Browser) Close() {
	b.allocCancel()
}

// Fetch navigates to url and returns the rendered DOM.
func (b *Browser) Fetch(ctx context.Context, url string) (Response, error) {
	if err := b.acquire(ctx); err != nil {
		return Response{}, err
	}
	defer b.release()

	taskCtx, taskCancel := chromedp.NewContext(b.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, b.cfg.NavTimeout)
	defer cancel()

	meta := newResponseMeta(url)
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		b.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	start := time.Now()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return Response{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, headers, responseURL := meta.snapshot(finalURL)
	return Response{
		URL:        responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Transport:  TransportBrowser,
	}, nil
}

func (b *Browser) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

// responseMeta captures the main document's response event so the transport
// can report a real status code and headers.
type responseMeta struct {
	mu         sync.RWMutex
	requestURL string
	status     int
	headers    http.Header
	url        string
}

func newResponseMeta(requestURL string) *responseMeta {
	return &responseMeta{requestURL: requestURL}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 && !sameDocumentURL(resp.Response.URL, m.requestURL) {
		return
	}
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.headers = toHTTPHeaders(resp.Response.Headers)
}

func (m *responseMeta) snapshot(fallbackURL string) (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := m.headers
	if headers == nil {
		headers = http.Header{}
	}
	url := m.url
	if url == "" {
		url = fallbackURL
	}
	return status, headers, url
}

func sameDocumentURL(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}

func toHTTPHeaders(in network.Headers) http.Header {
	out := http.Header{}
	for key, value := range in {
		out.Set(key, fmt.Sprint(value))
	}
	return out
}
