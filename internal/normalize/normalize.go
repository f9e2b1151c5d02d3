// Package normalize maps raw product records into the canonical catalog
// schema: integer-cent prices, coerced availability, flattened variants and
// options, derived identifiers, search text, and the content hash.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/shopindex/shopindex/internal/catalog"
	"github.com/shopindex/shopindex/internal/urlcanon"
)

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	spacesPattern   = regexp.MustCompile(`\s+`)
	nonSlugPattern  = regexp.MustCompile(`[^a-z0-9]+`)
	dashRunPattern  = regexp.MustCompile(`-{2,}`)
)

// Product converts one raw record into the canonical shape. It rejects
// records with no title and records whose URL cannot be resolved against the
// store base.
func Product(raw catalog.RawProduct, storeSlug, baseURL string) (catalog.Product, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return catalog.Product{}, fmt.Errorf("raw product has no title")
	}
	canonURL, err := urlcanon.Canonicalize(raw.URL, baseURL)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("resolve product url: %w", err)
	}

	handle := deriveHandle(raw.Handle, canonURL, title)
	productID := strings.TrimSpace(raw.ID)
	if productID == "" {
		// Stable across re-crawls of the same handle+URL pair.
		productID = ShortHash(handle + "|" + canonURL)
	}

	p := catalog.Product{
		StoreSlug:    storeSlug,
		ProductID:    productID,
		Title:        title,
		Handle:       handle,
		URL:          canonURL,
		Tags:         raw.Tags,
		Source:       raw.Source,
		Currency:     raw.Currency,
		Description:  StripHTML(raw.Description),
		Vendor:       firstNonEmpty(raw.Vendor, raw.Brand),
		ProductType:  raw.ProductType,
		ImageURL:     raw.ImageURL,
		Etag:         raw.Etag,
		LastModified: raw.LastModified,
	}

	p.Variants = normalizeVariants(raw.Variants, raw.Currency)
	p.Options = normalizeOptions(raw.Options)
	p.OptionTokens = optionTokens(p.Variants, p.Options)
	p.PriceMin, p.PriceMax = priceBounds(raw, p.Variants)
	p.Available = deriveAvailability(raw, p.Variants)
	p.SearchText = searchText(p)
	p.IsCatalogProduct = isCatalogProduct(p)
	p.SummaryShort = summaryShort(p)
	p.ContentHash = ContentHash(p)

	if p.PriceMin != nil && p.PriceMax != nil && *p.PriceMin > *p.PriceMax {
		return catalog.Product{}, fmt.Errorf("price bounds inverted for %s", handle)
	}
	return p, nil
}

func normalizeVariants(raws []catalog.RawVariant, productCurrency string) []catalog.Variant {
	var out []catalog.Variant
	for _, rv := range raws {
		v := catalog.Variant{
			ID:       strings.TrimSpace(rv.ID),
			Title:    strings.TrimSpace(rv.Title),
			SKU:      strings.TrimSpace(rv.SKU),
			Currency: firstNonEmpty(rv.Currency, productCurrency),
			Options:  rv.Options,
		}
		if price := ToIntegerCents(rv.Price); price != nil {
			v.PriceCents = *price
		}
		v.CompareAtCents = ToIntegerCents(rv.CompareAtPrice)
		if avail := ParseAvailability(rv.Available); avail != nil {
			v.Available = *avail
		}
		out = append(out, v)
	}
	return out
}

func normalizeOptions(raws []catalog.RawOption) []catalog.Option {
	var out []catalog.Option
	for _, ro := range raws {
		name := strings.TrimSpace(ro.Name)
		if name == "" {
			continue
		}
		out = append(out, catalog.Option{Name: name, Values: ro.Values})
	}
	return out
}

// optionTokens collects the distinct lower-cased option values seen on
// variants and option definitions.
func optionTokens(variants []catalog.Variant, options []catalog.Option) []string {
	seen := map[string]struct{}{}
	var tokens []string
	add := func(value string) {
		token := strings.ToLower(strings.TrimSpace(value))
		if token == "" {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	for _, opt := range options {
		for _, value := range opt.Values {
			add(value)
		}
	}
	for _, v := range variants {
		for _, value := range v.Options {
			add(value)
		}
	}
	return tokens
}

// priceBounds takes min/max over priced variants, falling back to the
// product-level price.
func priceBounds(raw catalog.RawProduct, variants []catalog.Variant) (*int64, *int64) {
	var min, max *int64
	for i, v := range variants {
		if raw.Variants[i].Price == nil {
			continue
		}
		price := v.PriceCents
		if min == nil || price < *min {
			min = ptr(price)
		}
		if max == nil || price > *max {
			max = ptr(price)
		}
	}
	if min == nil {
		if product := ToIntegerCents(raw.Price); product != nil {
			min, max = product, ptr(*product)
		}
	}
	return min, max
}

// deriveAvailability prefers the product-level signal; otherwise a product
// is available when any variant is, and defaults to available when wholly
// unknown.
func deriveAvailability(raw catalog.RawProduct, variants []catalog.Variant) bool {
	if avail := ParseAvailability(raw.Available); avail != nil {
		return *avail
	}
	anyKnown := false
	for i := range variants {
		if ParseAvailability(raw.Variants[i].Available) == nil {
			continue
		}
		anyKnown = true
		if variants[i].Available {
			return true
		}
	}
	return !anyKnown
}

func deriveHandle(explicit, canonURL, title string) string {
	if handle := strings.TrimSpace(explicit); handle != "" {
		return handle
	}
	if u, err := url.Parse(canonURL); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := segments[len(segments)-1]; last != "" {
			return last
		}
	}
	if slug := Slugify(title); slug != "" {
		return slug
	}
	return "product"
}

// Slugify lowercases and reduces a string to dash-separated alphanumerics.
func Slugify(s string) string {
	slug := strings.ToLower(strings.TrimSpace(s))
	slug = nonSlugPattern.ReplaceAllString(slug, "-")
	slug = dashRunPattern.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// StripHTML removes markup and collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(s)
	return strings.TrimSpace(spacesPattern.ReplaceAllString(s, " "))
}

func searchText(p catalog.Product) string {
	parts := []string{p.Title, p.Handle, p.Description, p.Vendor, p.ProductType}
	parts = append(parts, p.Tags...)
	var kept []string
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, " ")
}

// isCatalogProduct flags records that look like orderable products rather
// than incidental pages picked up by discovery.
func isCatalogProduct(p catalog.Product) bool {
	if u, err := url.Parse(p.URL); err == nil && urlcanon.IsProductPath(u.Path) {
		return true
	}
	if len(p.Variants) > 0 {
		return true
	}
	return p.PriceMin != nil
}

func summaryShort(p catalog.Product) string {
	base := p.Title
	if p.ProductType != "" {
		base += " (" + p.ProductType + ")"
	}
	if p.Description != "" {
		desc := []rune(p.Description)
		if len(desc) > 140 {
			desc = desc[:140]
		}
		base += ". " + string(desc)
	}
	return base
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func ptr(v int64) *int64 {
	return &v
}
