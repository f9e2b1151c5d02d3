package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shopindex/shopindex/internal/catalog"
)

// fromLinkedData scans every ld+json script block, flattens graph and
// item-list wrappers, and collects Product-typed nodes.
func fromLinkedData(doc *goquery.Document, pageURL string) []catalog.RawProduct {
	var products []catalog.RawProduct
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var node any
		if err := json.Unmarshal([]byte(sel.Text()), &node); err != nil {
			return
		}
		for _, candidate := range flattenLD(node) {
			if p, ok := productFromNode(candidate, pageURL); ok {
				products = append(products, p)
			}
		}
	})
	return products
}

// flattenLD recursively unwraps arrays, @graph containers, and
// ItemList/ListItem wrappers into candidate object nodes.
func flattenLD(node any) []map[string]any {
	var out []map[string]any
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			out = append(out, flattenLD(item)...)
		}
	case map[string]any:
		out = append(out, v)
		if graph, ok := v["@graph"]; ok {
			out = append(out, flattenLD(graph)...)
		}
		if elements, ok := v["itemListElement"]; ok {
			out = append(out, flattenLD(elements)...)
		}
		if item, ok := v["item"]; ok {
			out = append(out, flattenLD(item)...)
		}
	}
	return out
}

func productFromNode(node map[string]any, pageURL string) (catalog.RawProduct, bool) {
	if !hasType(node, "Product") {
		return catalog.RawProduct{}, false
	}
	p := catalog.RawProduct{
		Title:       asString(node["name"]),
		Description: asString(node["description"]),
		URL:         asString(node["url"]),
		ID:          firstString(node["productID"], node["sku"]),
		Brand:       nameOf(node["brand"]),
		ProductType: asString(node["category"]),
		ImageURL:    firstImage(node["image"]),
		Source:      catalog.SourceHTML,
	}
	if p.Title == "" {
		return catalog.RawProduct{}, false
	}
	if p.URL == "" {
		p.URL = pageURL
	}

	for _, offerNode := range offerNodes(node["offers"]) {
		variant := catalog.RawVariant{
			ID:        asString(offerNode["sku"]),
			SKU:       asString(offerNode["sku"]),
			Title:     asString(offerNode["name"]),
			Price:     offerNode["price"],
			Currency:  asString(offerNode["priceCurrency"]),
			Available: offerNode["availability"],
		}
		p.Variants = append(p.Variants, variant)
		if p.Price == nil {
			p.Price = offerNode["price"]
		}
		if p.Currency == "" {
			p.Currency = variant.Currency
		}
		if p.Available == nil {
			p.Available = offerNode["availability"]
		}
	}
	return p, true
}

// offerNodes flattens an offers value: a single Offer, a list of offers, or
// an AggregateOffer whose nested offers become the constituent variants.
func offerNodes(offers any) []map[string]any {
	var out []map[string]any
	switch v := offers.(type) {
	case []any:
		for _, item := range v {
			out = append(out, offerNodes(item)...)
		}
	case map[string]any:
		if hasType(v, "AggregateOffer") {
			if nested, ok := v["offers"]; ok {
				flattened := offerNodes(nested)
				if len(flattened) > 0 {
					return flattened
				}
			}
			// An aggregate with no constituent offers still carries price
			// bounds worth keeping as a single pseudo-offer.
			pseudo := map[string]any{
				"price":         firstNonNil(v["lowPrice"], v["price"]),
				"priceCurrency": v["priceCurrency"],
				"availability":  v["availability"],
			}
			return []map[string]any{pseudo}
		}
		out = append(out, v)
	}
	return out
}

func hasType(node map[string]any, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func firstString(values ...any) string {
	for _, v := range values {
		if s := asString(v); s != "" {
			return s
		}
	}
	return ""
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// nameOf handles both bare strings and {"@type":"Brand","name":...} objects.
func nameOf(v any) string {
	switch b := v.(type) {
	case string:
		return strings.TrimSpace(b)
	case map[string]any:
		return asString(b["name"])
	}
	return ""
}

func firstImage(v any) string {
	switch img := v.(type) {
	case string:
		return strings.TrimSpace(img)
	case []any:
		for _, item := range img {
			if s := firstImage(item); s != "" {
				return s
			}
		}
	case map[string]any:
		return firstString(img["url"], img["contentUrl"])
	}
	return ""
}
