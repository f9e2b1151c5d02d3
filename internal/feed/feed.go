// Package feed paginates a storefront's native JSON product feed and maps
// each entry into the raw product shape.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/fetch"
)

// Doer executes one fetch through the resilient chain.
type Doer interface {
	Do(ctx context.Context, req fetch.Request) (fetch.Response, error)
}

const (
	defaultPageSize = 250
	defaultMaxPages = 40
)

// Fetcher pages through /products.json for one store.
type Fetcher struct {
	base     string
	client   Doer
	pageSize int
	maxPages int
	logger   *zap.Logger
}

// New creates a feed Fetcher for a store base URL.
func New(base string, client Doer, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		base:     strings.TrimSuffix(base, "/"),
		client:   client,
		pageSize: defaultPageSize,
		maxPages: defaultMaxPages,
		logger:   logger,
	}
}

// Probe reports whether the feed endpoint answers with a parseable page.
// An empty product list still counts: the feed exists, the store is bare.
func (f *Fetcher) Probe(ctx context.Context) bool {
	page, err := f.fetchPage(ctx, 0, 1)
	return err == nil && page != nil
}

// FetchAll pages through the feed using a since_id cursor derived from the
// maximum product id seen, stopping on a short page, a non-advancing cursor,
// or the hard page cap.
func (f *Fetcher) FetchAll(ctx context.Context) ([]catalog.RawProduct, error) {
	var out []catalog.RawProduct
	var sinceID int64

	for page := 0; page < f.maxPages; page++ {
		entries, err := f.fetchPage(ctx, sinceID, f.pageSize)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			f.logger.Debug("feed page fetch failed, stopping pagination",
				zap.Int("page", page), zap.Error(err))
			break
		}
		for _, entry := range entries {
			out = append(out, mapFeedProduct(entry, f.base))
		}

		maxID := sinceID
		for _, entry := range entries {
			if entry.ID > maxID {
				maxID = entry.ID
			}
		}
		// A cursor that fails to advance means the feed ignores since_id;
		// continuing would loop forever.
		if len(entries) < f.pageSize || maxID == sinceID {
			break
		}
		sinceID = maxID
	}
	return out, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, sinceID int64, limit int) ([]feedProduct, error) {
	url := fmt.Sprintf("%s/products.json?limit=%d", f.base, limit)
	if sinceID > 0 {
		url = fmt.Sprintf("%s&since_id=%d", url, sinceID)
	}
	resp, err := f.client.Do(ctx, fetch.Request{
		URL:     url,
		Headers: http.Header{"Accept": {"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch feed page: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed page status %d", resp.StatusCode)
	}
	var body struct {
		Products []feedProduct `json:"products"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}
	if body.Products == nil {
		body.Products = []feedProduct{}
	}
	return body.Products, nil
}
