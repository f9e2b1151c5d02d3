// Package catalog defines the core types and collaborator interfaces for the
// storefront indexing pipeline. It includes the raw and normalized product
// shapes, discovery records, and crawl-run lifecycle types shared across
// subsystems.
package catalog

import "time"

// Source tags where a record or URL was discovered.
type Source string

// Source values recorded on products and discovered URLs.
const (
	SourceSitemap  Source = "sitemap"
	SourceFeed     Source = "feed"
	SourceHTML     Source = "html"
	SourceHTMLLink Source = "html_link"
	SourceExternal Source = "external"
)

// sourcePriority orders discovery sources; when the same URL arrives from
// several sources the entry keeps the highest-priority one.
var sourcePriority = map[Source]int{
	SourceExternal: 4,
	SourceFeed:     3,
	SourceHTMLLink: 2,
	SourceHTML:     2,
	SourceSitemap:  1,
}

// Priority returns the discovery precedence of a source. Unknown sources rank
// lowest.
func (s Source) Priority() int {
	return sourcePriority[s]
}

// RawOption is a product option definition as found in a feed or page.
type RawOption struct {
	Name   string
	Values []string
}

// RawVariant is a loosely-typed variant as extracted from a feed, a
// structured-data block, or HTML heuristics. Price and availability keep
// whatever JSON value the source carried; the normalizer coerces them.
type RawVariant struct {
	ID                string
	Title             string
	SKU               string
	Price             any
	CompareAtPrice    any
	Currency          string
	Available         any
	InventoryQuantity *int
	InventoryPolicy   string
	Options           map[string]string
	Option1           string
	Option2           string
	Option3           string
	FeaturedImage     string
}

// RawProduct is the tagged loosely-typed record produced by every discovery
// path. All fields are optional; a record without a title is rejected at
// normalization.
type RawProduct struct {
	ID           string
	Title        string
	Handle       string
	URL          string
	Description  string
	Vendor       string
	Brand        string
	ProductType  string
	Tags         []string
	Price        any
	Currency     string
	Available    any
	ImageURL     string
	Images       []string
	Variants     []RawVariant
	Options      []RawOption
	Source       Source
	Etag         string
	LastModified string
}

// Variant is the canonical variant shape.
type Variant struct {
	ID             string            `json:"id,omitempty"`
	Title          string            `json:"title,omitempty"`
	SKU            string            `json:"sku,omitempty"`
	PriceCents     int64             `json:"price_cents"`
	CompareAtCents *int64            `json:"compare_at_cents,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	Available      bool              `json:"available"`
	Options        map[string]string `json:"options,omitempty"`
}

// Option is a canonical product option definition.
type Option struct {
	Name   string   `json:"name"`
	Values []string `json:"values,omitempty"`
}

// Product is the canonical catalog record persisted per (store, handle).
// Embedding, SummaryShort, and SummaryLLM are enrichment fields and are
// excluded from the content hash.
type Product struct {
	StoreSlug        string    `json:"store_slug"`
	ProductID        string    `json:"product_id"`
	Title            string    `json:"title"`
	Handle           string    `json:"handle"`
	URL              string    `json:"url"`
	Tags             []string  `json:"tags,omitempty"`
	SearchText       string    `json:"search_text"`
	Available        bool      `json:"available"`
	Source           Source    `json:"source"`
	PriceMin         *int64    `json:"price_min,omitempty"`
	PriceMax         *int64    `json:"price_max,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	Description      string    `json:"description,omitempty"`
	Vendor           string    `json:"vendor,omitempty"`
	ProductType      string    `json:"product_type,omitempty"`
	ImageURL         string    `json:"image_url,omitempty"`
	Variants         []Variant `json:"variants,omitempty"`
	Options          []Option  `json:"options,omitempty"`
	Etag             string    `json:"etag,omitempty"`
	LastModified     string    `json:"last_modified,omitempty"`
	ContentHash      string    `json:"content_hash"`
	IsCatalogProduct bool      `json:"is_catalog_product"`
	SummaryShort     string    `json:"summary_short,omitempty"`
	SummaryLLM       string    `json:"summary_llm,omitempty"`
	OptionTokens     []string  `json:"option_tokens,omitempty"`
	Embedding        []float32 `json:"-"`
}

// DiscoveredURL is one candidate crawl target keyed by canonical URL.
type DiscoveredURL struct {
	URL                string `json:"url"`
	Source             Source `json:"source"`
	IsCandidateProduct bool   `json:"is_candidate_product"`
}

/// Merge folds a re-discovery of the same URL into the entry: the
// higher-priority source wins and the candidate flag is OR'd.
func (d *DiscoveredURL) Merge(other DiscoveredURL) {
	if other.Source.Priority() > d.Source.Priority() {
		d.Source = other.Source
	}
	d.IsCandidateProduct = d.IsCandidateProduct || other.IsCandidateProduct
}

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted on crawl_runs rows.
const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunStats accumulates discovery and crawl counters for one run.
type RunStats struct {
	Discovered       int `json:"discovered"`
	SitemapsVisited  int `json:"sitemaps_visited"`
	FeedProducts     int `json:"feed_products"`
	Crawled          int `json:"crawled"`
	Indexed          int `json:"indexed"`
	SkippedUnchanged int `json:"skipped_unchanged"`
	Errors           int `json:"errors"`
}

// CrawlRun is one index or refresh invocation for a single store.
type CrawlRun struct {
	ID         string     `json:"id"`
	StoreSlug  string     `json:"store_slug"`
	Mode       string     `json:"mode"`
	Status     RunStatus  `json:"status"`
	Stats      RunStats   `json:"stats"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// URLStatus is the terminal per-run state of one discovered URL.
type URLStatus string

// URL status values persisted on crawl_urls rows.
const (
	URLQueued   URLStatus = "queued"
	URLCrawled  URLStatus = "crawled"
	URLIndexed  URLStatus = "indexed"
	URLExcluded URLStatus = "excluded"
	URLError    URLStatus = "error"
)

// CrawlURLRecord tracks one discovered URL per store; unique per
// (store, canonical URL), re-discovery updates rather than duplicates.
type CrawlURLRecord struct {
	StoreSlug    string    `json:"store_slug"`
	URL          string    `json:"url"`
	Source       Source    `json:"source"`
	Status       URLStatus `json:"status"`
	HTTPStatus   int       `json:"http_status,omitempty"`
	Etag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// ConditionalState carries the validators used for conditional refetch.
type ConditionalState struct {
	Etag         string
	LastModified string
}

// StoreRecord is the per-store row maintained by the gateway.
type StoreRecord struct {
	Slug         string     `json:"slug"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Platform     string     `json:"platform"`
	ProductCount int        `json:"product_count"`
	IndexedAt    *time.Time `json:"indexed_at,omitempty"`
}

// StoreStatus is the run-scoped view served by the status endpoint.
type StoreStatus struct {
	Slug             string     `json:"slug"`
	RunID            string     `json:"run_id,omitempty"`
	State            RunStatus  `json:"state"`
	Discovered       int        `json:"discovered"`
	Crawled          int        `json:"crawled"`
	SitemapsVisited  int        `json:"sitemaps_visited"`
	SkippedUnchanged int        `json:"skipped_unchanged"`
	Warning          string     `json:"warning,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	LastIndexedAt    *time.Time `json:"last_indexed_at,omitempty"`
}
