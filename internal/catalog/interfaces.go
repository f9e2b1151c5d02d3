package catalog

import (
	"context"
	"time"
)

// Gateway is the persistence contract consumed by the pipeline. Product
// upserts are keyed by (store, handle); a write for an unchanged content hash
// must preserve the stored embedding and summary.
type Gateway interface {
	UpsertStore(ctx context.Context, store StoreRecord) error
	CreateRun(ctx context.Context, run CrawlRun) error
	FinishRun(ctx context.Context, runID string, status RunStatus, errText string, stats RunStats) error

	UpsertCrawlURLs(ctx context.Context, slug string, entries []DiscoveredURL) error
	UpdateCrawlURL(ctx context.Context, rec CrawlURLRecord) error
	ConditionalStates(ctx context.Context, slug string, urls []string) (map[string]ConditionalState, error)

	ContentHashes(ctx context.Context, slug string) (map[string]string, error)
	UpsertProducts(ctx context.Context, products []Product) error
	ListProducts(ctx context.Context, slug string, offset, limit int) ([]Product, int, error)
	MarkStoreIndexed(ctx context.Context, slug string, productCount int, at time.Time) error
}

// Embedder turns search text into vectors. Implementations must report
// per-item failures as nil vectors instead of failing the whole batch.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer produces a one-line product summary. Failures degrade to an
// empty string at the call site.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// URLSearcher is the optional external discovery provider: domain plus query
// in, candidate URLs out.
type URLSearcher interface {
	SearchURLs(ctx context.Context, domain, query string) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
