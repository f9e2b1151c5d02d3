// Package postgres implements the persistence gateway over a pgx pool.
// Schema provisioning is external; the gateway assumes the stores,
// crawl_runs, crawl_urls, and products tables exist.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopindex/shopindex/internal/catalog"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Gateway is the pgx-backed implementation of catalog.Gateway.
type Gateway struct {
	pool dbConn
}

// New connects a gateway using the provided config.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Gateway{pool: pool}, nil
}

// NewWithPool constructs a gateway from an existing pool (primarily for
// testing).
func NewWithPool(pool dbConn) (*Gateway, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Gateway{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (g *Gateway) Close() {
	if g == nil || g.pool == nil {
		return
	}
	g.pool.Close()
}

// Ping verifies the database is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	var one int
	if err := g.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// UpsertStore creates or refreshes the per-store row. Index outcome columns
// are left alone; MarkStoreIndexed owns those.
func (g *Gateway) UpsertStore(ctx context.Context, store catalog.StoreRecord) error {
	query := `
		INSERT INTO stores (slug, name, url, platform)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name,
			url = EXCLUDED.url,
			platform = EXCLUDED.platform;
	`
	if _, err := g.pool.Exec(ctx, query, store.Slug, store.Name, store.URL, store.Platform); err != nil {
		return fmt.Errorf("upsert store %s: %w", store.Slug, err)
	}
	return nil
}

// CreateRun inserts a crawl_runs row in its initial state.
func (g *Gateway) CreateRun(ctx context.Context, run catalog.CrawlRun) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}
	query := `
		INSERT INTO crawl_runs (id, store_slug, mode, status, stats, started_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	if _, err := g.pool.Exec(ctx, query, run.ID, run.StoreSlug, run.Mode, string(run.Status), stats, run.StartedAt); err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the terminal status, error text, and final counters.
func (g *Gateway) FinishRun(ctx context.Context, runID string, status catalog.RunStatus, errText string, stats catalog.RunStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}
	query := `
		UPDATE crawl_runs
		SET status = $1, error = NULLIF($2, ''), stats = $3, finished_at = now()
		WHERE id = $4;
	`
	if _, err := g.pool.Exec(ctx, query, string(status), errText, payload, runID); err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// UpsertCrawlURLs registers discovered URLs, one row per (store, url).
// Re-discovery refreshes the source tag and resets the row to queued without
// touching stored conditional validators.
func (g *Gateway) UpsertCrawlURLs(ctx context.Context, slug string, entries []catalog.DiscoveredURL) error {
	query := `
		INSERT INTO crawl_urls (store_slug, url, source, is_candidate_product, status)
		VALUES ($1, $2, $3, $4, 'queued')
		ON CONFLICT (store_slug, url) DO UPDATE
		SET source = EXCLUDED.source,
			is_candidate_product = crawl_urls.is_candidate_product OR EXCLUDED.is_candidate_product,
			status = 'queued',
			error = NULL;
	`
	for _, e := range entries {
		if _, err := g.pool.Exec(ctx, query, slug, e.URL, string(e.Source), e.IsCandidateProduct); err != nil {
			return fmt.Errorf("upsert crawl url %s: %w", e.URL, err)
		}
	}
	return nil
}

// UpdateCrawlURL records the per-run terminal state of one URL. Validators
// are only overwritten when the fetch produced new ones.
func (g *Gateway) UpdateCrawlURL(ctx context.Context, rec catalog.CrawlURLRecord) error {
	query := `
		UPDATE crawl_urls
		SET status = $1,
			http_status = $2,
			etag = COALESCE(NULLIF($3, ''), etag),
			last_modified = COALESCE(NULLIF($4, ''), last_modified),
			error = NULLIF($5, ''),
			fetched_at = now()
		WHERE store_slug = $6 AND url = $7;
	`
	if _, err := g.pool.Exec(ctx, query,
		string(rec.Status), rec.HTTPStatus, rec.Etag, rec.LastModified, rec.Error,
		rec.StoreSlug, rec.URL); err != nil {
		return fmt.Errorf("update crawl url %s: %w", rec.URL, err)
	}
	return nil
}

// ConditionalStates returns the stored etag/last-modified validators for the
// given URLs.
func (g *Gateway) ConditionalStates(ctx context.Context, slug string, urls []string) (map[string]catalog.ConditionalState, error) {
	if len(urls) == 0 {
		return map[string]catalog.ConditionalState{}, nil
	}
	query := `
		SELECT url, COALESCE(etag, ''), COALESCE(last_modified, '')
		FROM crawl_urls
		WHERE store_slug = $1 AND url = ANY($2);
	`
	rows, err := g.pool.Query(ctx, query, slug, urls)
	if err != nil {
		return nil, fmt.Errorf("query conditional states: %w", err)
	}
	defer rows.Close()

	out := map[string]catalog.ConditionalState{}
	for rows.Next() {
		var url string
		var state catalog.ConditionalState
		if err := rows.Scan(&url, &state.Etag, &state.LastModified); err != nil {
			return nil, fmt.Errorf("scan conditional state: %w", err)
		}
		if state.Etag != "" || state.LastModified != "" {
			out[url] = state
		}
	}
	return out, rows.Err()
}

// ContentHashes returns handle → content hash for every persisted product of
// the store; the enrichment delta is computed against this map.
func (g *Gateway) ContentHashes(ctx context.Context, slug string) (map[string]string, error) {
	query := `
		SELECT handle, COALESCE(content_hash, '')
		FROM products
		WHERE store_slug = $1;
	`
	rows, err := g.pool.Query(ctx, query, slug)
	if err != nil {
		return nil, fmt.Errorf("query content hashes: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var handle, hash string
		if err := rows.Scan(&handle, &hash); err != nil {
			return nil, fmt.Errorf("scan content hash: %w", err)
		}
		out[handle] = hash
	}
	return out, rows.Err()
}

// UpsertProducts writes catalog rows keyed by (store_slug, handle). When the
// incoming content hash matches the stored one the stored embedding is
// preserved, so unchanged records skipped by enrichment keep their vectors.
// An empty incoming summary never clobbers a stored one.
func (g *Gateway) UpsertProducts(ctx context.Context, products []catalog.Product) error {
	query := `
		INSERT INTO products (
			store_slug, product_id, handle, title, product_type, vendor, tags,
			price_min, price_max, available, url, summary_short, summary_llm,
			option_tokens, is_catalog_product, search_text, content_hash, data,
			embedding, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, NULLIF($13, ''), $14, $15, $16, $17, $18, $19::vector, now()
		)
		ON CONFLICT (store_slug, handle) DO UPDATE
		SET product_id = EXCLUDED.product_id,
			title = EXCLUDED.title,
			product_type = EXCLUDED.product_type,
			vendor = EXCLUDED.vendor,
			tags = EXCLUDED.tags,
			price_min = EXCLUDED.price_min,
			price_max = EXCLUDED.price_max,
			available = EXCLUDED.available,
			url = EXCLUDED.url,
			summary_short = EXCLUDED.summary_short,
			summary_llm = COALESCE(EXCLUDED.summary_llm, products.summary_llm),
			option_tokens = EXCLUDED.option_tokens,
			is_catalog_product = EXCLUDED.is_catalog_product,
			search_text = EXCLUDED.search_text,
			data = EXCLUDED.data,
			embedding = CASE
				WHEN products.content_hash = EXCLUDED.content_hash THEN products.embedding
				ELSE EXCLUDED.embedding
			END,
			content_hash = EXCLUDED.content_hash,
			updated_at = now();
	`
	for _, p := range products {
		tags, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags for %s: %w", p.Handle, err)
		}
		tokens, err := json.Marshal(p.OptionTokens)
		if err != nil {
			return fmt.Errorf("marshal option tokens for %s: %w", p.Handle, err)
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal product %s: %w", p.Handle, err)
		}
		if _, err := g.pool.Exec(ctx, query,
			p.StoreSlug, p.ProductID, p.Handle, p.Title, p.ProductType, p.Vendor, tags,
			p.PriceMin, p.PriceMax, p.Available, p.URL, p.SummaryShort, p.SummaryLLM,
			tokens, p.IsCatalogProduct, p.SearchText, p.ContentHash, data,
			vectorLiteral(p.Embedding)); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.Handle, err)
		}
	}
	return nil
}

// ListProducts pages through a store's catalog rows (non-catalog rows are
// excluded, with the predicate defaulting open for legacy rows). The second
// return value is the total row count before paging.
func (g *Gateway) ListProducts(ctx context.Context, slug string, offset, limit int) ([]catalog.Product, int, error) {
	var total int
	countQuery := `
		SELECT count(*)
		FROM products
		WHERE store_slug = $1 AND COALESCE(is_catalog_product, true) = true;
	`
	if err := g.pool.QueryRow(ctx, countQuery, slug).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := `
		SELECT data
		FROM products
		WHERE store_slug = $1 AND COALESCE(is_catalog_product, true) = true
		ORDER BY title, handle
		LIMIT $2 OFFSET $3;
	`
	rows, err := g.pool.Query(ctx, query, slug, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, 0, fmt.Errorf("scan product row: %w", err)
		}
		var p catalog.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, 0, fmt.Errorf("unmarshal product row: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// MarkStoreIndexed stamps the store with its last successful index outcome.
func (g *Gateway) MarkStoreIndexed(ctx context.Context, slug string, productCount int, at time.Time) error {
	query := `
		UPDATE stores
		SET product_count = $1, indexed_at = $2
		WHERE slug = $3;
	`
	if _, err := g.pool.Exec(ctx, query, productCount, at, slug); err != nil {
		return fmt.Errorf("mark store indexed %s: %w", slug, err)
	}
	return nil
}

// vectorLiteral renders an embedding in pgvector's input syntax; nil maps to
// SQL NULL.
func vectorLiteral(v []float32) any {
	if v == nil {
		return nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
