package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/fetch"
)

// pagedDoer serves feed pages keyed by since_id, honoring limit.
type pagedDoer struct {
	products    []map[string]any
	ignoreSince bool
	calls       int
}

func (d *pagedDoer) Do(_ context.Context, req fetch.Request) (fetch.Response, error) {
	d.calls++
	u, err := url.Parse(req.URL)
	if err != nil {
		return fetch.Response{}, err
	}
	limit, _ := strconv.Atoi(u.Query().Get("limit"))
	since, _ := strconv.ParseInt(u.Query().Get("since_id"), 10, 64)
	if d.ignoreSince {
		since = 0
	}

	var page []map[string]any
	for _, p := range d.products {
		id := p["id"].(int64)
		if id > since {
			page = append(page, p)
		}
		if len(page) == limit {
			break
		}
	}
	body, err := json.Marshal(map[string]any{"products": page})
	if err != nil {
		return fetch.Response{}, err
	}
	return fetch.Response{StatusCode: http.StatusOK, Body: body}, nil
}

func makeProducts(n int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, map[string]any{
			"id":     int64(i),
			"title":  fmt.Sprintf("Product %d", i),
			"handle": fmt.Sprintf("product-%d", i),
		})
	}
	return out
}

func newSmallPageFetcher(d Doer) *Fetcher {
	f := New("https://shop.example.com", d, nil)
	f.pageSize = 3
	return f
}

func TestFetchAllPaginates(t *testing.T) {
	t.Parallel()

	doer := &pagedDoer{products: makeProducts(7)}
	f := newSmallPageFetcher(doer)

	out, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 7)
	require.Equal(t, "product-1", out[0].Handle)
	require.Equal(t, catalog.SourceFeed, out[0].Source)
	require.Equal(t, "https://shop.example.com/products/product-1", out[0].URL)
	// 3 full pages + the short final page.
	require.Equal(t, 3, doer.calls)
}

func TestFetchAllStopsWhenCursorDoesNotAdvance(t *testing.T) {
	t.Parallel()

	doer := &pagedDoer{products: makeProducts(9), ignoreSince: true}
	f := newSmallPageFetcher(doer)

	out, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	// The feed keeps returning the first full page; pagination must stop
	// after detecting the stuck cursor instead of looping to the cap.
	require.Len(t, out, 6)
	require.Equal(t, 2, doer.calls)
}

func TestFetchAllHardPageCap(t *testing.T) {
	t.Parallel()

	doer := &pagedDoer{products: makeProducts(1000)}
	f := newSmallPageFetcher(doer)
	f.maxPages = 4

	out, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 12)
}

func TestProbe(t *testing.T) {
	t.Parallel()

	f := New("https://shop.example.com", &pagedDoer{}, nil)
	require.True(t, f.Probe(context.Background()), "empty feed still probes true")

	bad := doerFunc(func(context.Context, fetch.Request) (fetch.Response, error) {
		return fetch.Response{StatusCode: http.StatusNotFound}, nil
	})
	require.False(t, New("https://shop.example.com", bad, nil).Probe(context.Background()))

	html := doerFunc(func(context.Context, fetch.Request) (fetch.Response, error) {
		return fetch.Response{StatusCode: http.StatusOK, Body: []byte("<html>not json</html>")}, nil
	})
	require.False(t, New("https://shop.example.com", html, nil).Probe(context.Background()))
}

type doerFunc func(ctx context.Context, req fetch.Request) (fetch.Response, error)

func (f doerFunc) Do(ctx context.Context, req fetch.Request) (fetch.Response, error) {
	return f(ctx, req)
}

func TestMapFeedProductVariantdetails(t *testing.T) {
	t.Parallel()

	qty := 0
	avail := true
	p := feedProduct{
		ID:          42,
		Title:       "Insulated Bottle",
		Handle:      "insulated-bottle",
		BodyHTML:    "<p>Keeps drinks cold</p>",
		Vendor:      "Owala",
		ProductType: "Bottle",
		Tags:        json.RawMessage(`"bottle, insulated"`),
		Options:     []feedOption{{Name: "Color", Values: []string{"Red", "Blue"}}},
		Variants: []feedVariant{
			{
				ID:        1,
				Title:     "Red",
				Price:     "19.99",
				Available: &avail,
				Option1:   "Red",
				PresentmentPrices: []struct {
					Price struct {
						Amount       any    `json:"amount"`
						CurrencyCode string `json:"currency_code"`
					} `json:"price"`
				}{{Price: struct {
					Amount       any    `json:"amount"`
					CurrencyCode string `json:"currency_code"`
				}{Amount: "19.99", CurrencyCode: "USD"}}},
			},
			{
				ID:                2,
				Title:             "Blue",
				Price:             "21.99",
				InventoryQuantity: &qty,
				Option1:           "Blue",
				FeaturedImage:     &feedImage{Src: "https://cdn.example.com/blue.jpg"},
			},
			{
				ID:              3,
				Title:           "Green",
				Price:           "21.99",
				InventoryPolicy: "continue",
				Option1:         "Green",
			},
		},
	}

	raw := mapFeedProduct(p, "https://shop.example.com")
	require.Equal(t, "42", raw.ID)
	require.Equal(t, []string{"bottle", "insulated"}, raw.Tags)
	require.Equal(t, "https://cdn.example.com/blue.jpg", raw.ImageURL, "falls back to variant featured image")

	require.Len(t, raw.Variants, 3)
	require.Equal(t, true, raw.Variants[0].Available)
	require.Equal(t, "USD", raw.Variants[0].Currency)
	require.Equal(t, false, raw.Variants[1].Available, "zero inventory means unavailable")
	require.Equal(t, true, raw.Variants[2].Available, "oversell policy counts as available")
	require.Equal(t, map[string]string{"Color": "Red"}, raw.Variants[0].Options)

	// Green was missing from the explicit option values and must be
	// reconciled in from the variant.
	require.Len(t, raw.Options, 1)
	require.ElementsMatch(t, []string{"Red", "Blue", "Green"}, raw.Options[0].Values)
}

func TestParseTagsArrayForm(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b"}, parseTags(json.RawMessage(`["a"," b "]`)))
	require.Nil(t, parseTags(json.RawMessage(`""`)))
	require.Nil(t, parseTags(nil))
}
