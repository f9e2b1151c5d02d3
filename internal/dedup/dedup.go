// Package dedup collapses product candidates reached via multiple discovery
// sources into one record per logical product. The merge is a pure
// completeness-score tie-break, so the result is independent of candidate
// arrival order.
package dedup

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopindex/shopindex/internal/catalog"
)

// Accumulator collects candidates across concurrent workers.
type Accumulator struct {
	mu         sync.Mutex
	candidates []catalog.Product
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add records one candidate. Safe for concurrent use.
func (a *Accumulator) Add(p catalog.Product) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candidates = append(a.candidates, p)
}

// Len reports how many candidates were accumulated.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.candidates)
}

// Collapse runs the three-stage merge and returns one record per product.
func (a *Accumulator) Collapse() []catalog.Product {
	a.mu.Lock()
	candidates := append([]catalog.Product(nil), a.candidates...)
	a.mu.Unlock()
	return Collapse(candidates)
}

// Collapse reconciles candidates in three passes: composite key, then
// product id, then handle. Multiple passes are needed because the same
// product reached via feed, sitemap, HTML, and external discovery has
// different identifiers populated in each.
func Collapse(candidates []catalog.Product) []catalog.Product {
	stage1 := groupMerge(candidates, compositeKey)
	stage2 := groupMerge(stage1, idKey)
	return groupMerge(stage2, handleKey)
}

func compositeKey(p catalog.Product) string {
	for _, key := range []string{p.ProductID, p.Handle, p.URL} {
		if key != "" {
			return strings.ToLower(key)
		}
	}
	return strings.ToLower(p.Title)
}

func idKey(p catalog.Product) string {
	if p.ProductID != "" {
		return "id:" + strings.ToLower(p.ProductID)
	}
	return "url:" + strings.ToLower(p.URL)
}

func handleKey(p catalog.Product) string {
	switch {
	case p.Handle != "":
		return "handle:" + strings.ToLower(p.Handle)
	case p.ProductID != "":
		return "id:" + strings.ToLower(p.ProductID)
	default:
		return "url:" + strings.ToLower(p.URL)
	}
}

// groupMerge buckets candidates by key and keeps the best of each bucket,
// preserving deterministic output order by sorting on the key.
func groupMerge(candidates []catalog.Product, key func(catalog.Product) string) []catalog.Product {
	groups := map[string]catalog.Product{}
	for _, candidate := range candidates {
		k := key(candidate)
		existing, ok := groups[k]
		if !ok {
			groups[k] = candidate
			continue
		}
		groups[k] = merge(existing, candidate)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]catalog.Product, 0, len(groups))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out
}

// merge keeps the higher-scoring candidate. The comparison is strict so tie
// scores keep the existing record, and the scoring itself is symmetric,
// which makes the overall collapse order-independent.
func merge(existing, incoming catalog.Product) catalog.Product {
	se, si := CompletenessScore(existing), CompletenessScore(incoming)
	if si > se {
		return incoming
	}
	if si == se && tieBreak(incoming) < tieBreak(existing) {
		// Deterministic winner for equal scores regardless of arrival order.
		return incoming
	}
	return existing
}

func tieBreak(p catalog.Product) string {
	return p.URL + "\x00" + p.ProductID + "\x00" + p.ContentHash
}

// CompletenessScore counts the signals that make a record useful: price,
// description, image, variants, and feed origin (worth double, the feed is
// the richest source).
func CompletenessScore(p catalog.Product) int {
	score := 0
	if p.PriceMin != nil {
		score++
	}
	if p.Description != "" {
		score++
	}
	if p.ImageURL != "" {
		score++
	}
	if len(p.Variants) > 0 {
		score++
	}
	if p.Source == catalog.SourceFeed {
		score += 2
	}
	return score
}

// Diagnostics summarizes duplicate pressure for observability; it never
// alters merge outcomes.
type Diagnostics struct {
	ByCompositeKey int
	ByProductID    int
	ByHandle       int
	TopHandles     []HandleCollision
}

// HandleCollision records a handle mapped to several product ids.
type HandleCollision struct {
	Handle     string
	Count      int
	ProductIDs []string
}

// Diagnose computes collision counts over the original candidate set.
func Diagnose(candidates []catalog.Product) Diagnostics {
	composite := map[string]int{}
	ids := map[string]int{}
	handleIDs := map[string]map[string]struct{}{}
	handles := map[string]int{}

	for _, p := range candidates {
		composite[compositeKey(p)]++
		ids[idKey(p)]++
		handles[handleKey(p)]++
		if p.Handle != "" && p.ProductID != "" {
			h := strings.ToLower(p.Handle)
			if handleIDs[h] == nil {
				handleIDs[h] = map[string]struct{}{}
			}
			handleIDs[h][p.ProductID] = struct{}{}
		}
	}

	d := Diagnostics{
		ByCompositeKey: countDupes(composite),
		ByProductID:    countDupes(ids),
		ByHandle:       countDupes(handles),
	}
	for handle, idSet := range handleIDs {
		if len(idSet) < 2 {
			continue
		}
		collision := HandleCollision{Handle: handle, Count: len(idSet)}
		for id := range idSet {
			collision.ProductIDs = append(collision.ProductIDs, id)
		}
		sort.Strings(collision.ProductIDs)
		d.TopHandles = append(d.TopHandles, collision)
	}
	sort.Slice(d.TopHandles, func(i, j int) bool {
		if d.TopHandles[i].Count != d.TopHandles[j].Count {
			return d.TopHandles[i].Count > d.TopHandles[j].Count
		}
		return d.TopHandles[i].Handle < d.TopHandles[j].Handle
	})
	if len(d.TopHandles) > 10 {
		d.TopHandles = d.TopHandles[:10]
	}
	return d
}

func countDupes(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		if n > 1 {
			total += n - 1
		}
	}
	return total
}
