// Package orchestrator drives one index or refresh run end to end: platform
// detection, discovery fan-out, the bounded fetch/extract loop, dedup,
// enrichment, and persistence, with terminal run state reported through the
// registry and the gateway.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/dedup"
	"github.com/shopindex/shopindex/internal/enrich"
	"github.com/shopindex/shopindex/internal/extract"
	"github.com/shopindex/shopindex/internal/feed"
	"github.com/shopindex/shopindex/internal/fetch"
	"github.com/shopindex/shopindex/internal/metrics"
	"github.com/shopindex/shopindex/internal/normalize"
	"github.com/shopindex/shopindex/internal/platform"
	"github.com/shopindex/shopindex/internal/registry"
	"github.com/shopindex/shopindex/internal/sitemap"
	"github.com/shopindex/shopindex/internal/urlcanon"
	"github.com/shopindex/shopindex/internal/worker"
)

// CollectionDiscoverer is the bounded collection-page crawl.
type CollectionDiscoverer interface {
	Discover(ctx context.Context, baseURL string, extraSeeds []string) ([]catalog.DiscoveredURL, error)
}

// ExternalDiscoverer is the optional search-provider booster.
type ExternalDiscoverer interface {
	Discover(ctx context.Context, baseURL string) []catalog.DiscoveredURL
}

// Enricher fills embeddings and summaries for the given delta indexes.
type Enricher interface {
	Enrich(ctx context.Context, products []catalog.Product, delta []int) error
}

// Config bounds one run. Zero values fall back to defaults.
type Config struct {
	FetchConcurrency      int
	LargeFetchConcurrency int
	MaxCrawlURLs          int
	LargeMaxCrawlURLs     int
	LargeStoreThreshold   int
	ProductOnlyMin        int
	RatePerSecond         float64
}

const (
	defaultFetchConcurrency      = 8
	defaultLargeFetchConcurrency = 16
	defaultMaxCrawlURLs          = 500
	defaultLargeMaxCrawlURLs     = 1500
	defaultLargeStoreThreshold   = 800
	defaultProductOnlyMin        = 25
)

func (c *Config) applyDefaults() {
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = defaultFetchConcurrency
	}
	if c.LargeFetchConcurrency <= 0 {
		c.LargeFetchConcurrency = defaultLargeFetchConcurrency
	}
	if c.MaxCrawlURLs <= 0 {
		c.MaxCrawlURLs = defaultMaxCrawlURLs
	}
	if c.LargeMaxCrawlURLs <= 0 {
		c.LargeMaxCrawlURLs = defaultLargeMaxCrawlURLs
	}
	if c.LargeStoreThreshold <= 0 {
		c.LargeStoreThreshold = defaultLargeStoreThreshold
	}
	if c.ProductOnlyMin <= 0 {
		c.ProductOnlyMin = defaultProductOnlyMin
	}
}

// Orchestrator owns the run lifecycle for all stores.
type Orchestrator struct {
	cfg        Config
	gateway    catalog.Gateway
	fetcher    feed.Doer
	collection CollectionDiscoverer
	external   ExternalDiscoverer
	enricher   Enricher
	registry   *registry.Registry
	clock      catalog.Clock
	logger     *zap.Logger
}

// New wires an orchestrator. collection, external, and enricher may be nil;
// the corresponding stages are skipped.
func New(cfg Config, gateway catalog.Gateway, fetcher feed.Doer, collection CollectionDiscoverer, external ExternalDiscoverer, enricher Enricher, reg *registry.Registry, clock catalog.Clock, logger *zap.Logger) *Orchestrator {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		gateway:    gateway,
		fetcher:    fetcher,
		collection: collection,
		external:   external,
		enricher:   enricher,
		registry:   reg,
		clock:      clock,
		logger:     logger,
	}
}

// StartRequest is an index or refresh invocation for one store.
type StartRequest struct {
	URL   string
	Name  string
	Slug  string
	Force bool
}

// Start validates the request, claims the slug, records the initial run row,
// and launches the run in the background. It returns the initial status view
// or registry.ErrRunActive when the slug already has a run in flight.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (catalog.StoreStatus, error) {
	base, err := normalizeStoreURL(req.URL)
	if err != nil {
		return catalog.StoreStatus{}, err
	}
	slug := req.Slug
	if slug == "" {
		slug = SlugFromURL(base)
	}
	name := req.Name
	if name == "" {
		name = slug
	}

	mode := "index"
	if req.Force {
		mode = "refresh"
	}
	entry, err := o.registry.Start(slug, mode)
	if err != nil {
		return catalog.StoreStatus{}, err
	}

	run := catalog.CrawlRun{
		ID:        entry.RunID(),
		StoreSlug: slug,
		Mode:      mode,
		Status:    catalog.RunQueued,
		StartedAt: o.clock.Now(),
	}
	if err := o.gateway.UpsertStore(ctx, catalog.StoreRecord{Slug: slug, Name: name, URL: base}); err != nil {
		entry.Finish(catalog.RunFailed, err.Error(), nil)
		return catalog.StoreStatus{}, err
	}
	if err := o.gateway.CreateRun(ctx, run); err != nil {
		entry.Finish(catalog.RunFailed, err.Error(), nil)
		return catalog.StoreStatus{}, err
	}

	go o.execute(context.WithoutCancel(ctx), entry, base, name, req.Force)
	return entry.Status(), nil
}

// Status returns the live status for a slug, or false when it never ran.
func (o *Orchestrator) Status(slug string) (catalog.StoreStatus, bool) {
	entry := o.registry.Get(slug)
	if entry == nil {
		return catalog.StoreStatus{}, false
	}
	return entry.Status(), true
}

// execute runs the pipeline and always leaves the run in a terminal state.
func (o *Orchestrator) execute(ctx context.Context, entry *registry.Entry, base, name string, force bool) {
	slug := entry.Slug()
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("run panic: %v", r)
		}
		o.finish(ctx, entry, runErr)
	}()

	entry.MarkRunning()
	runErr = o.run(ctx, entry, slug, base, name, force)
}

func (o *Orchestrator) finish(ctx context.Context, entry *registry.Entry, runErr error) {
	status := catalog.RunCompleted
	errText := ""
	var indexedAt *time.Time
	if runErr != nil {
		status = catalog.RunFailed
		errText = runErr.Error()
	} else {
		now := o.clock.Now()
		indexedAt = &now
	}
	entry.Finish(status, errText, indexedAt)
	if err := o.gateway.FinishRun(ctx, entry.RunID(), status, errText, entry.Stats()); err != nil {
		o.logger.Error("persist terminal run state failed",
			zap.String("run_id", entry.RunID()),
			zap.Error(err))
	}
	o.logger.Info("run finished",
		zap.String("store", entry.Slug()),
		zap.String("run_id", entry.RunID()),
		zap.String("status", string(status)),
		zap.String("error", errText))
}

func (o *Orchestrator) run(ctx context.Context, entry *registry.Entry, slug, base, name string, force bool) error {
	feedFetcher := feed.New(base, o.fetcher, o.logger)

	detected := platform.Detect(ctx, base, feedFetcher.Probe, o.homepage(base))
	if err := o.gateway.UpsertStore(ctx, catalog.StoreRecord{
		Slug: slug, Name: name, URL: base, Platform: string(detected),
	}); err != nil {
		return err
	}

	// Sitemaps come first; collection discovery wants their collection URLs
	// as extra seeds.
	engine := sitemap.New(base, o.sitemapFetch(), 0, 0, o.logger)
	smResult := engine.Discover(ctx, engine.Seeds(ctx))
	entry.AddStats(catalog.RunStats{SitemapsVisited: smResult.SitemapsVisited})

	merged := map[string]catalog.DiscoveredURL{}
	mergeAll := func(urls []catalog.DiscoveredURL) {
		for _, d := range urls {
			if existing, ok := merged[d.URL]; ok {
				existing.Merge(d)
				merged[d.URL] = existing
			} else {
				merged[d.URL] = d
			}
		}
	}
	mergeAll(smResult.URLs)

	acc := dedup.NewAccumulator()

	var feedRecords []catalog.RawProduct
	g, gctx := errgroup.WithContext(ctx)
	if detected.FeedCapable() {
		g.Go(func() error {
			records, err := feedFetcher.FetchAll(gctx)
			if err != nil {
				o.logger.Warn("feed fetch failed", zap.String("store", slug), zap.Error(err))
				return nil
			}
			feedRecords = records
			return nil
		})
	}
	if o.external != nil {
		g.Go(func() error {
			// No other goroutine touches merged until Wait returns.
			mergeAll(o.external.Discover(gctx, base))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, raw := range feedRecords {
		product, err := normalize.Product(raw, slug, base)
		if err != nil {
			continue
		}
		acc.Add(product)
	}
	entry.AddStats(catalog.RunStats{FeedProducts: acc.Len()})

	feedEmptyOnFeedPlatform := detected.FeedCapable() && len(feedRecords) == 0
	if feedEmptyOnFeedPlatform && o.collection != nil {
		found, err := o.collection.Discover(ctx, base, collectionSeeds(smResult.URLs))
		if err != nil {
			o.logger.Warn("collection discovery failed", zap.String("store", slug), zap.Error(err))
		} else {
			mergeAll(found)
		}
	}

	large := len(merged) > o.cfg.LargeStoreThreshold || feedEmptyOnFeedPlatform
	targets := o.crawlSet(merged, large)
	entry.AddStats(catalog.RunStats{Discovered: len(merged)})

	if err := o.gateway.UpsertCrawlURLs(ctx, slug, targets); err != nil {
		return err
	}

	if err := o.crawl(ctx, entry, slug, base, targets, large, force, acc); err != nil {
		return err
	}

	products := acc.Collapse()
	catalogRows := make([]catalog.Product, 0, len(products))
	for _, p := range products {
		if p.IsCatalogProduct {
			catalogRows = append(catalogRows, p)
		}
	}

	if o.enricher != nil && len(catalogRows) > 0 {
		priorHashes, err := o.gateway.ContentHashes(ctx, slug)
		if err != nil {
			return err
		}
		delta := enrich.Delta(catalogRows, priorHashes, force)
		if err := o.enricher.Enrich(ctx, catalogRows, delta); err != nil {
			return err
		}
	}

	if len(catalogRows) > 0 {
		if err := o.gateway.UpsertProducts(ctx, catalogRows); err != nil {
			return err
		}
		metrics.ObserveProducts(len(catalogRows))
	} else {
		entry.SetWarning("no products found")
	}
	entry.AddStats(catalog.RunStats{Indexed: len(catalogRows)})

	if err := o.gateway.MarkStoreIndexed(ctx, slug, len(catalogRows), o.clock.Now()); err != nil {
		return err
	}
	return nil
}

// crawl fetches every target through the worker pool, extracting and
// normalizing products into the accumulator. Per-URL failures are absorbed
// and recorded; only context cancellation stops the loop.
func (o *Orchestrator) crawl(ctx context.Context, entry *registry.Entry, slug, base string, targets []catalog.DiscoveredURL, large, force bool, acc *dedup.Accumulator) error {
	if len(targets) == 0 {
		return nil
	}

	var conditionals map[string]catalog.ConditionalState
	if !force {
		urls := make([]string, len(targets))
		for i, t := range targets {
			urls[i] = t.URL
		}
		var err error
		conditionals, err = o.gateway.ConditionalStates(ctx, slug, urls)
		if err != nil {
			return err
		}
	}

	concurrency := o.cfg.FetchConcurrency
	if large {
		concurrency = o.cfg.LargeFetchConcurrency
	}
	pool := worker.New(concurrency, o.cfg.RatePerSecond)
	return pool.Run(ctx, len(targets), func(ctx context.Context, i int) {
		o.crawlOne(ctx, entry, slug, base, targets[i], conditionals[targets[i].URL], acc)
	})
}

func (o *Orchestrator) crawlOne(ctx context.Context, entry *registry.Entry, slug, base string, target catalog.DiscoveredURL, cond catalog.ConditionalState, acc *dedup.Accumulator) {
	req := fetch.Request{URL: target.URL, Headers: http.Header{}}
	if cond.Etag != "" {
		req.Headers.Set("If-None-Match", cond.Etag)
	}
	if cond.LastModified != "" {
		req.Headers.Set("If-Modified-Since", cond.LastModified)
	}

	record := catalog.CrawlURLRecord{
		StoreSlug: slug,
		URL:       target.URL,
		Source:    target.Source,
	}

	resp, err := o.fetcher.Do(ctx, req)
	if err != nil {
		entry.AddStats(catalog.RunStats{Crawled: 1, Errors: 1})
		record.Status = catalog.URLError
		record.Error = err.Error()
		o.recordURL(ctx, record)
		return
	}
	record.HTTPStatus = resp.StatusCode
	record.Etag = resp.Headers.Get("Etag")
	record.LastModified = resp.Headers.Get("Last-Modified")

	switch {
	case resp.StatusCode == http.StatusNotModified:
		entry.AddStats(catalog.RunStats{Crawled: 1, SkippedUnchanged: 1})
		record.Status = catalog.URLCrawled
		o.recordURL(ctx, record)
		return
	case resp.StatusCode >= 400:
		entry.AddStats(catalog.RunStats{Crawled: 1, Errors: 1})
		record.Status = catalog.URLError
		record.Error = fmt.Sprintf("http %d", resp.StatusCode)
		o.recordURL(ctx, record)
		return
	}

	indexed := 0
	for _, raw := range extract.Products(resp.Body, target.URL) {
		raw.Etag = record.Etag
		raw.LastModified = record.LastModified
		product, err := normalize.Product(raw, slug, base)
		if err != nil {
			continue
		}
		acc.Add(product)
		indexed++
	}

	entry.AddStats(catalog.RunStats{Crawled: 1})
	if indexed > 0 {
		record.Status = catalog.URLIndexed
	} else if target.IsCandidateProduct {
		record.Status = catalog.URLCrawled
	} else {
		record.Status = catalog.URLExcluded
	}
	o.recordURL(ctx, record)
}

func (o *Orchestrator) recordURL(ctx context.Context, rec catalog.CrawlURLRecord) {
	metrics.ObserveURL(string(rec.Status))
	if err := o.gateway.UpdateCrawlURL(ctx, rec); err != nil {
		o.logger.Warn("record crawl url failed", zap.String("url", rec.URL), zap.Error(err))
	}
}

// crawlSet prioritizes and caps the merged discovery set. When enough
// product-path URLs exist the set is restricted to those, so incidental
// pages do not consume the crawl budget.
func (o *Orchestrator) crawlSet(merged map[string]catalog.DiscoveredURL, large bool) []catalog.DiscoveredURL {
	productOnly := make([]string, 0, len(merged))
	all := make([]string, 0, len(merged))
	for u := range merged {
		all = append(all, u)
		if parsed, err := url.Parse(u); err == nil && urlcanon.IsProductPath(parsed.Path) {
			productOnly = append(productOnly, u)
		}
	}

	chosen := all
	if len(productOnly) >= o.cfg.ProductOnlyMin {
		chosen = productOnly
	}
	urlcanon.SortByScore(chosen)

	limit := o.cfg.MaxCrawlURLs
	if large {
		limit = o.cfg.LargeMaxCrawlURLs
	}
	if len(chosen) > limit {
		chosen = chosen[:limit]
	}

	out := make([]catalog.DiscoveredURL, len(chosen))
	for i, u := range chosen {
		out[i] = merged[u]
	}
	return out
}

// collectionSeeds picks the collection URLs out of the sitemap result.
func collectionSeeds(urls []catalog.DiscoveredURL) []string {
	var out []string
	for _, d := range urls {
		if parsed, err := url.Parse(d.URL); err == nil && urlcanon.IsCollectionPath(parsed.Path) {
			out = append(out, d.URL)
		}
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) sitemapFetch() sitemap.FetchFunc {
	return func(ctx context.Context, u string) ([]byte, error) {
		resp, err := o.fetcher.Do(ctx, fetch.Request{URL: u})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("http %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
}

func (o *Orchestrator) homepage(base string) platform.HomepageFunc {
	return func(ctx context.Context) ([]byte, error) {
		resp, err := o.fetcher.Do(ctx, fetch.Request{URL: base})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("http %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
}

// normalizeStoreURL validates and trims the requested store URL.
func normalizeStoreURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("store url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse store url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("store url has no host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// SlugFromURL derives a store slug from the hostname.
func SlugFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return normalize.Slugify(raw)
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	if i := strings.LastIndex(host, "."); i > 0 {
		host = host[:i]
	}
	return normalize.Slugify(strings.ReplaceAll(host, ".", "-"))
}
