package urlcanon

import (
	"net/url"
	"sort"
	"strings"
)

// Score ranks a URL for crawl prioritization. Product-like paths dominate,
// item/SKU hints and product query parameters add a moderate boost, and
// collection paths plus variant query hints add small ones.
func Score(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	path := strings.ToLower(u.Path)
	score := 0

	if IsProductPath(path) {
		score += 100
	}
	for _, hint := range []string{"/item/", "/items/", "/sku/", "/dp/"} {
		if strings.Contains(path, hint) {
			score += 40
			break
		}
	}
	if IsCollectionPath(path) {
		score += 10
	}

	q := u.Query()
	for _, key := range []string{"product", "product_id", "sku", "pid", "item"} {
		if q.Has(key) {
			score += 40
			break
		}
	}
	for _, key := range []string{"variant", "color", "colour", "size", "option"} {
		if q.Has(key) {
			score += 5
			break
		}
	}
	return score
}

// SortByScore orders URLs by descending score, breaking ties lexically so the
// ordering is deterministic across runs.
func SortByScore(urls []string) {
	sort.SliceStable(urls, func(i, j int) bool {
		si, sj := Score(urls[i]), Score(urls[j])
		if si != sj {
			return si > sj
		}
		return urls[i] < urls[j]
	})
}
