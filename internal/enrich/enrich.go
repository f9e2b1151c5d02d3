// Package enrich computes embeddings and optional one-line summaries for
// catalog records whose content changed since the last successful index.
package enrich

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/metrics"
)

// Stage drives enrichment for one run. Summarizer is optional; a nil
// summarizer skips summaries entirely.
type Stage struct {
	embedder        catalog.Embedder
	summarizer      catalog.Summarizer
	summaryParallel int
	logger          *zap.Logger
}

const defaultSummaryParallel = 4

// New constructs an enrichment stage.
func New(embedder catalog.Embedder, summarizer catalog.Summarizer, summaryParallel int, logger *zap.Logger) *Stage {
	if summaryParallel <= 0 {
		summaryParallel = defaultSummaryParallel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{
		embedder:        embedder,
		summarizer:      summarizer,
		summaryParallel: summaryParallel,
		logger:          logger,
	}
}

// Delta returns the indexes of products whose content hash differs from the
// persisted hash for the same handle. With force set, every product is in the
// delta.
func Delta(products []catalog.Product, priorHashes map[string]string, force bool) []int {
	out := make([]int, 0, len(products))
	for i, p := range products {
		if force {
			out = append(out, i)
			continue
		}
		if prior, ok := priorHashes[p.Handle]; !ok || prior != p.ContentHash {
			out = append(out, i)
		}
	}
	return out
}

// Enrich fills Embedding and SummaryLLM in place for the products at the
// given indexes. Per-item provider failures leave the field empty and never
// fail the run; only context cancellation returns an error.
func (s *Stage) Enrich(ctx context.Context, products []catalog.Product, delta []int) error {
	if len(delta) == 0 {
		return nil
	}
	if err := s.embed(ctx, products, delta); err != nil {
		return err
	}
	return s.summarize(ctx, products, delta)
}

func (s *Stage) embed(ctx context.Context, products []catalog.Product, delta []int) error {
	if s.embedder == nil {
		return nil
	}
	texts := make([]string, len(delta))
	for i, idx := range delta {
		texts[i] = products[idx].SearchText
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	embedded, missed := 0, 0
	for i, idx := range delta {
		if i < len(vectors) && vectors[i] != nil {
			products[idx].Embedding = vectors[i]
			embedded++
		} else {
			missed++
		}
	}
	metrics.ObserveEnrichment("embedding", "ok")
	if missed > 0 {
		s.logger.Warn("some products missing embeddings",
			zap.Int("embedded", embedded),
			zap.Int("missing", missed))
	}
	return nil
}

func (s *Stage) summarize(ctx context.Context, products []catalog.Product, delta []int) error {
	if s.summarizer == nil {
		return nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.summaryParallel)
	for _, idx := range delta {
		idx := idx
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := s.summarizer.Summarize(gctx, products[idx].SearchText)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				metrics.ObserveEnrichment("summary", "error")
				s.logger.Debug("summary failed",
					zap.String("handle", products[idx].Handle),
					zap.Error(err))
				return nil
			}
			metrics.ObserveEnrichment("summary", "ok")
			mu.Lock()
			products[idx].SummaryLLM = summary
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
