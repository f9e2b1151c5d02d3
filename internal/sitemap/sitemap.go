// Package sitemap resolves seed sitemap URLs from robots.txt and performs a
// bounded breadth-first traversal of sitemap indexes, accumulating
// product-candidate URLs.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/urlcanon"
)

// FetchFunc retrieves the body of one sitemap URL.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

const (
	defaultMaxDepth   = 5
	defaultMaxVisited = 500
)

// fallbackPaths are probed when robots.txt lists no sitemaps.
var fallbackPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/sitemap_products_1.xml",
}

// Engine walks sitemap graphs for one store.
type Engine struct {
	base       string
	fetch      FetchFunc
	maxDepth   int
	maxVisited int
	logger     *zap.Logger
}

// Result carries discovered URLs and traversal counters.
type Result struct {
	URLs            []catalog.DiscoveredURL
	SitemapsVisited int
}

// New creates an Engine for a store base URL. Zero limits fall back to the
// defaults (depth 5, 500 sitemaps).
func New(base string, fetch FetchFunc, maxDepth, maxVisited int, logger *zap.Logger) *Engine {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	if maxVisited <= 0 {
		maxVisited = defaultMaxVisited
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		base:       base,
		fetch:      fetch,
		maxDepth:   maxDepth,
		maxVisited: maxVisited,
		logger:     logger,
	}
}

// Discover runs the bounded BFS over the seed sitemaps. Individual sitemap
// failures are logged and skipped; the traversal itself never errors.
func (e *Engine) Discover(ctx context.Context, seeds []string) Result {
	type item struct {
		url   string
		depth int
	}

	queue := make([]item, 0, len(seeds))
	visited := map[string]struct{}{}
	for _, seed := range seeds {
		queue = append(queue, item{url: seed, depth: 0})
	}

	discovered := map[string]*catalog.DiscoveredURL{}
	var order []string
	visitCount := 0

	for len(queue) > 0 {
		// Hard safety bound against cyclic or malicious sitemap graphs.
		if visitCount >= e.maxVisited {
			e.logger.Warn("sitemap visit cap reached, halting traversal",
				zap.Int("cap", e.maxVisited), zap.Int("pending", len(queue)))
			break
		}
		next := queue[0]
		queue = queue[1:]

		if _, seen := visited[next.url]; seen {
			continue
		}
		visited[next.url] = struct{}{}
		visitCount++

		body, err := e.fetch(ctx, next.url)
		if err != nil {
			e.logger.Debug("sitemap fetch failed", zap.String("url", next.url), zap.Error(err))
			continue
		}
		body, err = maybeGunzip(body)
		if err != nil {
			e.logger.Debug("sitemap gunzip failed", zap.String("url", next.url), zap.Error(err))
			continue
		}

		children, pageURLs := parseSitemap(body)
		if next.depth < e.maxDepth {
			for _, child := range children {
				if _, seen := visited[child]; !seen {
					queue = append(queue, item{url: child, depth: next.depth + 1})
				}
			}
		}
		for _, raw := range pageURLs {
			canon, err := urlcanon.Canonicalize(raw, e.base)
			if err != nil {
				continue
			}
			entry := catalog.DiscoveredURL{
				URL:                canon,
				Source:             catalog.SourceSitemap,
				IsCandidateProduct: isProductURL(canon),
			}
			if existing, ok := discovered[canon]; ok {
				existing.Merge(entry)
				continue
			}
			copied := entry
			discovered[canon] = &copied
			order = append(order, canon)
		}
	}

	result := Result{SitemapsVisited: visitCount}
	for _, u := range order {
		result.URLs = append(result.URLs, *discovered[u])
	}
	return result
}

// parseSitemap parses a body as a sitemap index or urlset; on XML failure it
// treats the body as newline-delimited absolute URLs.
func parseSitemap(body []byte) (children []string, pages []string) {
	var index struct {
		XMLName  xml.Name `xml:"sitemapindex"`
		Sitemaps []struct {
			Loc string `xml:"loc"`
		} `xml:"sitemap"`
	}
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		for _, entry := range index.Sitemaps {
			if loc := strings.TrimSpace(entry.Loc); loc != "" {
				children = append(children, loc)
			}
		}
		return children, nil
	}

	var urlset struct {
		XMLName xml.Name `xml:"urlset"`
		URLs    []struct {
			Loc string `xml:"loc"`
		} `xml:"url"`
	}
	if err := xml.Unmarshal(body, &urlset); err == nil && len(urlset.URLs) > 0 {
		for _, entry := range urlset.URLs {
			if loc := strings.TrimSpace(entry.Loc); loc != "" {
				pages = append(pages, loc)
			}
		}
		return nil, pages
	}

	// Plaintext fallback: one absolute URL per line.
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			pages = append(pages, line)
		}
	}
	return nil, pages
}

func maybeGunzip(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	reader, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer func() { _ = reader.Close() }()
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gunzip: %w", err)
	}
	return out, nil
}

func isProductURL(canon string) bool {
	if idx := strings.Index(canon, "://"); idx >= 0 {
		if slash := strings.IndexByte(canon[idx+3:], '/'); slash >= 0 {
			return urlcanon.IsProductPath(canon[idx+3+slash:])
		}
	}
	return false
}
