package dedup

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopindex/shopindex/internal/catalog"
)

func price(v int64) *int64 { return &v }

func feedRecord() catalog.Product {
	return catalog.Product{
		ProductID:   "42",
		Handle:      "bottle",
		URL:         "https://shop.example.com/products/bottle",
		Title:       "Bottle",
		Description: "Insulated bottle",
		ImageURL:    "https://cdn.example.com/b.jpg",
		PriceMin:    price(1999),
		Variants:    []catalog.Variant{{ID: "1", PriceCents: 1999}},
		Source:      catalog.SourceFeed,
	}
}

func htmlRecord() catalog.Product {
	// Same logical product via HTML extraction: no feed id, sparser fields.
	return catalog.Product{
		Handle: "bottle",
		URL:    "https://shop.example.com/products/bottle",
		Title:  "Bottle",
		Source: catalog.SourceHTML,
	}
}

func sitemapRecord() catalog.Product {
	return catalog.Product{
		ProductID: "42",
		URL:       "https://shop.example.com/products/bottle",
		Title:     "Bottle",
		Source:    catalog.SourceHTML,
	}
}

func TestCollapseMergesAcrossKeyTypes(t *testing.T) {
	t.Parallel()

	out := Collapse([]catalog.Product{feedRecord(), htmlRecord(), sitemapRecord()})
	require.Len(t, out, 1)
	require.Equal(t, catalog.SourceFeed, out[0].Source, "richest record survives")
	require.Equal(t, "42", out[0].ProductID)
}

func TestCollapseOrderIndependent(t *testing.T) {
	t.Parallel()

	records := []catalog.Product{
		feedRecord(),
		htmlRecord(),
		sitemapRecord(),
		{Handle: "lid", URL: "https://shop.example.com/products/lid", Title: "Lid", Source: catalog.SourceHTML},
		{ProductID: "7", Handle: "lid", URL: "https://shop.example.com/products/lid", Title: "Lid", PriceMin: price(500), Source: catalog.SourceFeed},
	}

	baseline := Collapse(append([]catalog.Product(nil), records...))
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]catalog.Product(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		require.Equal(t, baseline, Collapse(shuffled), "trial %d", trial)
	}
}

func TestCollapseKeepsDistinctProducts(t *testing.T) {
	t.Parallel()

	out := Collapse([]catalog.Product{
		{ProductID: "1", Handle: "a", URL: "https://x.com/products/a", Title: "A"},
		{ProductID: "2", Handle: "b", URL: "https://x.com/products/b", Title: "B"},
	})
	require.Len(t, out, 2)
}

func TestCompletenessScore(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, CompletenessScore(catalog.Product{}))
	require.Equal(t, 6, CompletenessScore(feedRecord()))
	require.Equal(t, 2, CompletenessScore(catalog.Product{Source: catalog.SourceFeed}))
}

func TestAccumulatorConcurrentAdds(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator()
	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func(w int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				acc.Add(feedRecord())
			}
		}(w)
	}
	for w := 0; w < 8; w++ {
		<-done
	}
	require.Equal(t, 400, acc.Len())
	require.Len(t, acc.Collapse(), 1)
}

func TestDiagnoseCollisions(t *testing.T) {
	t.Parallel()

	diag := Diagnose([]catalog.Product{
		{ProductID: "1", Handle: "bottle", URL: "https://x.com/products/bottle"},
		{ProductID: "2", Handle: "bottle", URL: "https://x.com/products/bottle-v2"},
		{ProductID: "1", Handle: "bottle", URL: "https://x.com/products/bottle"},
	})
	require.NotEmpty(t, diag.TopHandles)
	require.Equal(t, "bottle", diag.TopHandles[0].Handle)
	require.Equal(t, []string{"1", "2"}, diag.TopHandles[0].ProductIDs)
	require.Positive(t, diag.ByCompositeKey)
}
