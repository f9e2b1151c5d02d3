package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shopindex/shopindex/internal/catalog"
)

const urlsetBody = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://shop.example.com/products/bottle</loc></url>
  <url><loc>https://shop.example.com/collections/all</loc></url>
  <url><loc>https://shop.example.com/pages/about</loc></url>
</urlset>`

func fetchMap(bodies map[string][]byte) FetchFunc {
	return func(_ context.Context, url string) ([]byte, error) {
		body, ok := bodies[url]
		if !ok {
			return nil, fmt.Errorf("no body for %s", url)
		}
		return body, nil
	}
}

func gzipped(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func urlSet(result Result) map[string]catalog.DiscoveredURL {
	out := map[string]catalog.DiscoveredURL{}
	for _, u := range result.URLs {
		out[u.URL] = u
	}
	return out
}

func TestDiscoverUrlset(t *testing.T) {
	t.Parallel()

	e := New("https://shop.example.com", fetchMap(map[string][]byte{
		"https://shop.example.com/sitemap.xml": []byte(urlsetBody),
	}), 0, 0, nil)

	result := e.Discover(context.Background(), []string{"https://shop.example.com/sitemap.xml"})
	require.Equal(t, 1, result.SitemapsVisited)

	urls := urlSet(result)
	require.Len(t, urls, 3)
	require.True(t, urls["https://shop.example.com/products/bottle"].IsCandidateProduct)
	require.False(t, urls["https://shop.example.com/collections/all"].IsCandidateProduct)
}

func TestDiscoverGzipRoundTrip(t *testing.T) {
	t.Parallel()

	plain := New("https://shop.example.com", fetchMap(map[string][]byte{
		"https://shop.example.com/sitemap.xml": []byte(urlsetBody),
	}), 0, 0, nil)
	compressed := New("https://shop.example.com", fetchMap(map[string][]byte{
		"https://shop.example.com/sitemap.xml": gzipped(t, urlsetBody),
	}), 0, 0, nil)

	seeds := []string{"https://shop.example.com/sitemap.xml"}
	require.Equal(t,
		urlSet(plain.Discover(context.Background(), seeds)),
		urlSet(compressed.Discover(context.Background(), seeds)))
}

func TestDiscoverIndexTraversal(t *testing.T) {
	t.Parallel()

	index := `<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://shop.example.com/sitemap_products_1.xml</loc></sitemap>
</sitemapindex>`

	e := New("https://shop.example.com", fetchMap(map[string][]byte{
		"https://shop.example.com/sitemap.xml":            []byte(index),
		"https://shop.example.com/sitemap_products_1.xml": []byte(urlsetBody),
	}), 0, 0, nil)

	result := e.Discover(context.Background(), []string{"https://shop.example.com/sitemap.xml"})
	require.Equal(t, 2, result.SitemapsVisited)
	require.Len(t, result.URLs, 3)
}

func TestDiscoverCyclicIndexHaltsAtCap(t *testing.T) {
	t.Parallel()

	// a and b point at each other; the visited set breaks the direct cycle
	// and the cap bounds graphs that generate fresh URLs forever.
	cyclic := func(other string) []byte {
		return []byte(fmt.Sprintf(`<sitemapindex><sitemap><loc>%s</loc></sitemap></sitemapindex>`, other))
	}
	a := "https://shop.example.com/sitemap-a.xml"
	b := "https://shop.example.com/sitemap-b.xml"

	e := New("https://shop.example.com", fetchMap(map[string][]byte{
		a: cyclic(b),
		b: cyclic(a),
	}), 10, 0, nil)

	result := e.Discover(context.Background(), []string{a})
	require.Equal(t, 2, result.SitemapsVisited, "each sitemap visited exactly once")

	// With a tiny cap, traversal halts even though the queue is non-empty.
	capped := New("https://shop.example.com", fetchMap(map[string][]byte{
		a: cyclic(b),
		b: cyclic(a),
	}), 10, 1, nil)
	require.Equal(t, 1, capped.Discover(context.Background(), []string{a}).SitemapsVisited)
}

func TestDiscoverDepthBound(t *testing.T) {
	t.Parallel()

	bodies := map[string][]byte{}
	for i := 0; i < 5; i++ {
		child := fmt.Sprintf("https://shop.example.com/sitemap-%d.xml", i+1)
		bodies[fmt.Sprintf("https://shop.example.com/sitemap-%d.xml", i)] =
			[]byte(fmt.Sprintf(`<sitemapindex><sitemap><loc>%s</loc></sitemap></sitemapindex>`, child))
	}
	bodies["https://shop.example.com/sitemap-5.xml"] = []byte(urlsetBody)

	shallow := New("https://shop.example.com", fetchMap(bodies), 2, 0, nil)
	result := shallow.Discover(context.Background(), []string{"https://shop.example.com/sitemap-0.xml"})
	require.Empty(t, result.URLs, "depth bound stops before the urlset leaf")
	require.Equal(t, 3, result.SitemapsVisited)
}

func TestDiscoverPlaintextFallback(t *testing.T) {
	t.Parallel()

	body := "https://shop.example.com/products/a\nnot a url\nhttps://shop.example.com/products/b\n"
	e := New("https://shop.example.com", fetchMap(map[string][]byte{
		"https://shop.example.com/sitemap.xml": []byte(body),
	}), 0, 0, nil)

	result := e.Discover(context.Background(), []string{"https://shop.example.com/sitemap.xml"})
	require.Len(t, result.URLs, 2)
	for _, u := range result.URLs {
		require.True(t, u.IsCandidateProduct)
	}
}

func TestSeedsFromRobots(t *testing.T) {
	t.Parallel()

	robots := "User-agent: *\nAllow: /\nSitemap: https://shop.example.com/sitemap_main.xml\n"
	e := New("https://shop.example.com", fetchMap(map[string][]byte{
		"https://shop.example.com/robots.txt": []byte(robots),
	}), 0, 0, nil)

	seeds := e.Seeds(context.Background())
	require.Equal(t, []string{"https://shop.example.com/sitemap_main.xml"}, seeds)
}

func TestSeedsFallbackPaths(t *testing.T) {
	t.Parallel()

	e := New("https://shop.example.com", fetchMap(nil), 0, 0, nil)
	seeds := e.Seeds(context.Background())
	require.Contains(t, seeds, "https://shop.example.com/sitemap.xml")
	require.Contains(t, seeds, "https://shop.example.com/sitemap_index.xml")
}
