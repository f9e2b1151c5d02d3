// Package discovery implements the optional external discovery plugin: a
// search-provider client that turns "domain + query" into candidate product
// URLs. It is strictly a best-effort booster; every failure degrades to an
// empty result.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/urlcanon"
)

// Config describes the search provider endpoint.
type Config struct {
	Enabled    bool
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxResults int
}

const defaultMaxResults = 25

// Client calls an Exa-style JSON search API. It implements catalog.URLSearcher.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient constructs a search-provider client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type searchRequest struct {
	Query          string   `json:"query"`
	NumResults     int      `json:"num_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResponse struct {
	Results []struct {
		URL string `json:"url"`
	} `json:"results"`
}

// SearchURLs asks the provider for pages on domain matching query.
func (c *Client) SearchURLs(ctx context.Context, domain, query string) ([]string, error) {
	body, err := json.Marshal(searchRequest{
		Query:          query,
		NumResults:     c.cfg.MaxResults,
		IncludeDomains: []string{domain},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search provider returned %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	urls := make([]string, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	return urls, nil
}

// productQueries are the canned probes run against every store domain.
var productQueries = []string{
	"products",
	"shop all products catalog",
}

// Plugin adapts a URLSearcher into the discovery pipeline.
type Plugin struct {
	searcher catalog.URLSearcher
	logger   *zap.Logger
}

// NewPlugin wraps a searcher. A nil searcher yields a plugin that discovers
// nothing, so callers can wire it unconditionally.
func NewPlugin(searcher catalog.URLSearcher, logger *zap.Logger) *Plugin {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plugin{searcher: searcher, logger: logger}
}

// Discover runs the canned queries and returns the same-host product URLs the
// provider surfaced. Provider errors are logged and swallowed.
func (p *Plugin) Discover(ctx context.Context, baseURL string) []catalog.DiscoveredURL {
	if p.searcher == nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	domain := base.Hostname()

	found := map[string]catalog.DiscoveredURL{}
	for _, query := range productQueries {
		urls, err := p.searcher.SearchURLs(ctx, domain, query)
		if err != nil {
			p.logger.Warn("external discovery query failed",
				zap.String("domain", domain),
				zap.String("query", query),
				zap.Error(err))
			continue
		}
		for _, raw := range urls {
			canon, err := urlcanon.Canonicalize(raw, baseURL)
			if err != nil || !urlcanon.SameHost(canon, baseURL) {
				continue
			}
			parsed, err := url.Parse(canon)
			if err != nil || !urlcanon.IsProductPath(parsed.Path) {
				continue
			}
			entry := catalog.DiscoveredURL{
				URL:                canon,
				Source:             catalog.SourceExternal,
				IsCandidateProduct: true,
			}
			if existing, ok := found[canon]; ok {
				existing.Merge(entry)
				found[canon] = existing
			} else {
				found[canon] = entry
			}
		}
	}

	out := make([]catalog.DiscoveredURL, 0, len(found))
	for _, d := range found {
		out = append(out, d)
	}
	return out
}
