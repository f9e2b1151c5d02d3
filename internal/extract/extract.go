// Package extract pulls raw product records out of fetched HTML. The primary
// path reads structured linked-data blocks; a heuristic meta-tag fallback
// covers product-looking pages without structured data.
package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/urlcanon"
)

// Products extracts zero or more raw products from a page. Parse failures
// yield an empty slice, never an error: malformed pages are dropped items.
func Products(html []byte, pageURL string) []catalog.RawProduct {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}

	products := fromLinkedData(doc, pageURL)
	if len(products) == 0 && looksLikeProductPage(pageURL) {
		if p, ok := fromMetaTags(doc, pageURL); ok {
			products = append(products, p)
		}
	}
	return dedupInPage(products)
}

// looksLikeProductPage gates the heuristic fallback by path and query shape.
func looksLikeProductPage(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	if urlcanon.IsProductPath(u.Path) {
		return true
	}
	q := u.Query()
	for _, key := range []string{"product", "product_id", "sku", "pid"} {
		if q.Has(key) {
			return true
		}
	}
	return false
}

// dedupInPage collapses duplicates within one page by product id, else by
// URL+title.
func dedupInPage(products []catalog.RawProduct) []catalog.RawProduct {
	if len(products) < 2 {
		return products
	}
	seen := map[string]struct{}{}
	out := products[:0]
	for _, p := range products {
		key := p.ID
		if key == "" {
			key = p.URL + "\x00" + strings.ToLower(p.Title)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
