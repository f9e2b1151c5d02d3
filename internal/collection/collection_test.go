package collection

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopindex/shopindex/internal/catalog"
)

func testCrawler(t *testing.T, cfg Config) *Crawler {
	t.Helper()
	cfg.UserAgent = "shopindex-test"
	cfg.Timeout = 5 * time.Second
	cfg.Parallelism = 1
	return New(cfg, zap.NewNop())
}

func urlSet(urls []catalog.DiscoveredURL) map[string]catalog.DiscoveredURL {
	out := map[string]catalog.DiscoveredURL{}
	for _, d := range urls {
		out[d.URL] = d
	}
	return out
}

func TestDiscoverHarvestsAnchorsAndScripts(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/collections/all", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `<html><body><a href="/products/charger">Charger</a></body></html>`)
			return
		}
		fmt.Fprintf(w, `<html><body>
			<a href="/products/bottle">Bottle</a>
			<a href="/products/lid?variant=123">Lid</a>
			<a href="https://elsewhere.example.com/products/stolen">Off host</a>
			<a href="/collections/all?page=2">Next</a>
			<script>var state = {"url": "/products/preloaded-mug"};</script>
			</body></html>`)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	crawler := testCrawler(t, Config{})
	urls, err := crawler.Discover(context.Background(), server.URL, nil)
	require.NoError(t, err)

	got := urlSet(urls)
	require.Contains(t, got, server.URL+"/products/bottle")
	require.Contains(t, got, server.URL+"/products/lid", "variant query stripped")
	require.Contains(t, got, server.URL+"/products/charger", "pagination followed")
	require.Contains(t, got, server.URL+"/products/preloaded-mug", "inline script scanned")
	require.NotContains(t, got, "https://elsewhere.example.com/products/stolen")

	for _, d := range urls {
		require.Equal(t, catalog.SourceHTMLLink, d.Source)
		require.True(t, d.IsCandidateProduct)
	}
}

func TestDiscoverRespectsPageBudget(t *testing.T) {
	var hits atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/all", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		page := r.URL.Query().Get("page")
		next := "2"
		switch page {
		case "2":
			next = "3"
		case "3":
			next = "4"
		case "4":
			next = "5"
		}
		fmt.Fprintf(w, `<html><body><a href="/collections/all?page=%s">Next</a></body></html>`, next)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	crawler := testCrawler(t, Config{MaxPages: 3})
	_, err := crawler.Discover(context.Background(), server.URL, nil)
	require.NoError(t, err)
	require.LessOrEqual(t, hits.Load(), int64(3))
}

func TestDiscoverUsesExtraSeeds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/summer-sale", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/products/sunhat">Sunhat</a></body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	crawler := testCrawler(t, Config{})
	urls, err := crawler.Discover(context.Background(), server.URL,
		[]string{server.URL + "/collections/summer-sale"})
	require.NoError(t, err)
	require.Contains(t, urlSet(urls), server.URL+"/products/sunhat")
}

func TestSeedsCappedAndDeduplicated(t *testing.T) {
	crawler := testCrawler(t, Config{MaxSeeds: 4})
	extra := []string{
		"https://shop.example.com/collections/all", // duplicate of a default
		"https://shop.example.com/collections/sale",
		"https://shop.example.com/collections/new",
		"https://shop.example.com/collections/clearance",
		"https://elsewhere.example.com/collections/foreign",
	}
	seeds := crawler.seeds("https://shop.example.com", extra)
	require.Len(t, seeds, 4)
	require.Equal(t, "https://shop.example.com/collections/all", seeds[0])
	require.NotContains(t, seeds, "https://elsewhere.example.com/collections/foreign")
}
