// Package collection walks a storefront's collection pages with a bounded
// colly crawl and harvests product URLs from anchors and inline scripts.
// It is the fallback discovery path for stores whose sitemap and feed are
// missing or thin.
package collection

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/urlcanon"
)

// Config bounds the collection crawl. Zero values fall back to defaults.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Parallelism int
	MaxSeeds    int
	MaxPages    int
}

const (
	defaultMaxSeeds    = 30
	defaultMaxPages    = 60
	defaultParallelism = 4
	defaultTimeout     = 15 * time.Second
)

// defaultSeedPaths are the conventional catalog entry points tried on every
// store regardless of what the sitemap yielded.
var defaultSeedPaths = []string{
	"/collections/all",
	"/collections/all-products",
	"/collections/frontpage",
}

// scriptProductRef matches product paths embedded in inline script blobs,
// where storefront themes keep their preloaded catalog state.
var scriptProductRef = regexp.MustCompile(`/products/[a-z0-9][a-z0-9_.-]*`)

// Crawler discovers product URLs from collection listing pages.
type Crawler struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs a collection crawler.
func New(cfg Config, logger *zap.Logger) *Crawler {
	if cfg.MaxSeeds <= 0 {
		cfg.MaxSeeds = defaultMaxSeeds
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{cfg: cfg, logger: logger}
}

// Discover crawls up to MaxPages collection pages starting from the default
// seed paths plus extraSeeds (usually sitemap collection URLs) and returns
// the product URLs found. Off-host links are discarded and every URL is
// canonicalized before it is recorded.
func (c *Crawler) Discover(ctx context.Context, baseURL string, extraSeeds []string) ([]catalog.DiscoveredURL, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(base.Hostname(), strings.TrimPrefix(base.Hostname(), "www.")),
		colly.UserAgent(c.cfg.UserAgent),
	)
	collector.AllowURLRevisit = false
	collector.SetRequestTimeout(c.cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
		RandomDelay: 100 * time.Millisecond,
	}); err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		pages   int
		found   = map[string]catalog.DiscoveredURL{}
		visited = map[string]struct{}{}
	)

	record := func(raw string) {
		canon, err := urlcanon.Canonicalize(raw, baseURL)
		if err != nil || !urlcanon.SameHost(canon, baseURL) {
			return
		}
		parsed, err := url.Parse(canon)
		if err != nil || !urlcanon.IsProductPath(parsed.Path) {
			return
		}
		entry := catalog.DiscoveredURL{
			URL:                canon,
			Source:             catalog.SourceHTMLLink,
			IsCandidateProduct: true,
		}
		mu.Lock()
		if existing, ok := found[canon]; ok {
			existing.Merge(entry)
			found[canon] = existing
		} else {
			found[canon] = entry
		}
		mu.Unlock()
	}

	// enqueue asks for another collection page unless the page budget or
	// the seed/pagination dedup says no.
	enqueue := func(raw string, visit func(string) error) {
		canon, err := urlcanon.Canonicalize(raw, baseURL)
		if err != nil || !urlcanon.SameHost(canon, baseURL) {
			return
		}
		parsed, err := url.Parse(canon)
		if err != nil || !urlcanon.IsCollectionPath(parsed.Path) {
			return
		}
		mu.Lock()
		if _, seen := visited[canon]; seen || pages >= c.cfg.MaxPages {
			mu.Unlock()
			return
		}
		visited[canon] = struct{}{}
		mu.Unlock()
		if err := visit(canon); err != nil && !isAlreadyVisited(err) {
			c.logger.Debug("collection visit rejected", zap.String("url", canon), zap.Error(err))
		}
	}

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		mu.Lock()
		if pages >= c.cfg.MaxPages {
			mu.Unlock()
			r.Abort()
			return
		}
		pages++
		mu.Unlock()
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		record(link)
		enqueue(link, e.Request.Visit)
	})

	collector.OnHTML("script", func(e *colly.HTMLElement) {
		for _, ref := range scriptProductRef.FindAllString(e.Text, -1) {
			record(base.Scheme + "://" + base.Host + ref)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		if status == http.StatusNotFound {
			return // missing conventional seed, expected
		}
		c.logger.Debug("collection page error",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", status),
			zap.Error(err))
	})

	for _, seed := range c.seeds(baseURL, extraSeeds) {
		mu.Lock()
		visited[seed] = struct{}{}
		mu.Unlock()
		if err := collector.Visit(seed); err != nil && !isAlreadyVisited(err) {
			c.logger.Debug("collection seed rejected", zap.String("url", seed), zap.Error(err))
		}
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]catalog.DiscoveredURL, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	c.logger.Info("collection discovery finished",
		zap.String("store", base.Host),
		zap.Int("pages", pages),
		zap.Int("products", len(out)))
	return out, nil
}

// seeds resolves the conventional seed paths plus any caller-supplied
// collection URLs, deduplicated and capped at MaxSeeds.
func (c *Crawler) seeds(baseURL string, extra []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(defaultSeedPaths)+len(extra))
	add := func(raw string) {
		if len(out) >= c.cfg.MaxSeeds {
			return
		}
		canon, err := urlcanon.Canonicalize(raw, baseURL)
		if err != nil || !urlcanon.SameHost(canon, baseURL) {
			return
		}
		if _, ok := seen[canon]; ok {
			return
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}
	for _, p := range defaultSeedPaths {
		add(strings.TrimRight(baseURL, "/") + p)
	}
	for _, raw := range extra {
		add(raw)
	}
	return out
}

// isAlreadyVisited reports whether err is colly's already-visited error.
func isAlreadyVisited(err error) bool {
	var ave *colly.AlreadyVisitedError
	return errors.As(err, &ave)
}
