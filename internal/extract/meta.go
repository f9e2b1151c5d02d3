package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shopindex/shopindex/internal/catalog"
)

// metaSelector is one (selector, attribute) probe; empty attr reads text.
type metaSelector struct {
	selector string
	attr     string
}

var (
	titleSelectors = []metaSelector{
		{`meta[property="og:title"]`, "content"},
		{`meta[name="twitter:title"]`, "content"},
		{`[itemprop="name"]`, "content"},
		{"h1", ""},
		{"title", ""},
	}
	priceSelectors = []metaSelector{
		{`meta[property="product:price:amount"]`, "content"},
		{`meta[property="og:price:amount"]`, "content"},
		{`meta[itemprop="price"]`, "content"},
		{`[itemprop="price"]`, "content"},
	}
	currencySelectors = []metaSelector{
		{`meta[property="product:price:currency"]`, "content"},
		{`meta[property="og:price:currency"]`, "content"},
		{`[itemprop="priceCurrency"]`, "content"},
	}
	availabilitySelectors = []metaSelector{
		{`meta[property="product:availability"]`, "content"},
		{`meta[property="og:availability"]`, "content"},
		{`link[itemprop="availability"]`, "href"},
		{`[itemprop="availability"]`, "content"},
	}
	descriptionSelectors = []metaSelector{
		{`meta[property="og:description"]`, "content"},
		{`meta[name="description"]`, "content"},
	}
	brandSelectors = []metaSelector{
		{`meta[property="product:brand"]`, "content"},
		{`meta[property="og:brand"]`, "content"},
		{`[itemprop="brand"]`, "content"},
	}
	imageSelectors = []metaSelector{
		{`meta[property="og:image"]`, "content"},
		{`meta[name="twitter:image"]`, "content"},
		{`[itemprop="image"]`, "content"},
	}
)

var notFoundMarkers = []string{"page not found", "404", "not found"}

// fromMetaTags derives a product from meta tags and microdata, first match
// per field wins. Pages whose derived title reads like a not-found page are
// rejected.
func fromMetaTags(doc *goquery.Document, pageURL string) (catalog.RawProduct, bool) {
	title := firstMatch(doc, titleSelectors)
	if title == "" || titleLooksNotFound(title) {
		return catalog.RawProduct{}, false
	}
	p := catalog.RawProduct{
		Title:       title,
		URL:         pageURL,
		Description: firstMatch(doc, descriptionSelectors),
		Brand:       firstMatch(doc, brandSelectors),
		ImageURL:    firstMatch(doc, imageSelectors),
		Currency:    firstMatch(doc, currencySelectors),
		Source:      catalog.SourceHTML,
	}
	if price := firstMatch(doc, priceSelectors); price != "" {
		p.Price = price
	}
	if availability := firstMatch(doc, availabilitySelectors); availability != "" {
		p.Available = availability
	}
	return p, true
}

func firstMatch(doc *goquery.Document, selectors []metaSelector) string {
	for _, probe := range selectors {
		sel := doc.Find(probe.selector).First()
		if sel.Length() == 0 {
			continue
		}
		var value string
		if probe.attr == "" {
			value = sel.Text()
		} else {
			value, _ = sel.Attr(probe.attr)
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func titleLooksNotFound(title string) bool {
	lower := strings.ToLower(title)
	for _, marker := range notFoundMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
