package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopindex/shopindex/internal/catalog"
)

// feedProduct mirrors one entry of a Shopify-style /products.json page.
type feedProduct struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Handle      string          `json:"handle"`
	BodyHTML    string          `json:"body_html"`
	Vendor      string          `json:"vendor"`
	ProductType string          `json:"product_type"`
	Tags        json.RawMessage `json:"tags"`
	Image       *feedImage      `json:"image"`
	Images      []feedImage     `json:"images"`
	Options     []feedOption    `json:"options"`
	Variants    []feedVariant   `json:"variants"`
}

type feedImage struct {
	Src string `json:"src"`
}

type feedOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type feedVariant struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	SKU               string     `json:"sku"`
	Price             any        `json:"price"`
	CompareAtPrice    any        `json:"compare_at_price"`
	Available         *bool      `json:"available"`
	InventoryQuantity *int       `json:"inventory_quantity"`
	InventoryPolicy   string     `json:"inventory_policy"`
	Option1           string     `json:"option1"`
	Option2           string     `json:"option2"`
	Option3           string     `json:"option3"`
	FeaturedImage     *feedImage `json:"featured_image"`
	PresentmentPrices []struct {
		Price struct {
			Amount       any    `json:"amount"`
			CurrencyCode string `json:"currency_code"`
		} `json:"price"`
	} `json:"presentment_prices"`
}

// mapFeedProduct converts one feed entry into the raw product shape.
func mapFeedProduct(p feedProduct, base string) catalog.RawProduct {
	raw := catalog.RawProduct{
		ID:          fmt.Sprintf("%d", p.ID),
		Title:       p.Title,
		Handle:      p.Handle,
		Description: p.BodyHTML,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        parseTags(p.Tags),
		ImageURL:    resolveImage(p),
		Source:      catalog.SourceFeed,
	}
	if p.Handle != "" {
		raw.URL = strings.TrimSuffix(base, "/") + "/products/" + p.Handle
	}

	optionNames := make([]string, 0, len(p.Options))
	for _, opt := range p.Options {
		optionNames = append(optionNames, opt.Name)
		raw.Options = append(raw.Options, catalog.RawOption{Name: opt.Name, Values: opt.Values})
	}

	for _, v := range p.Variants {
		raw.Variants = append(raw.Variants, mapFeedVariant(v, optionNames))
	}

	// Reconcile option definitions from positional variant fields when the
	// explicit list is missing or has no values.
	raw.Options = reconcileOptions(raw.Options, raw.Variants)
	return raw
}

func mapFeedVariant(v feedVariant, optionNames []string) catalog.RawVariant {
	variant := catalog.RawVariant{
		ID:                fmt.Sprintf("%d", v.ID),
		Title:             v.Title,
		SKU:               v.SKU,
		Price:             v.Price,
		CompareAtPrice:    v.CompareAtPrice,
		InventoryQuantity: v.InventoryQuantity,
		InventoryPolicy:   v.InventoryPolicy,
		Option1:           v.Option1,
		Option2:           v.Option2,
		Option3:           v.Option3,
	}
	if v.FeaturedImage != nil {
		variant.FeaturedImage = v.FeaturedImage.Src
	}

	// Availability priority: explicit flag, then inventory count, then an
	// oversell-permitting policy; otherwise left unknown.
	switch {
	case v.Available != nil:
		variant.Available = *v.Available
	case v.InventoryQuantity != nil:
		variant.Available = *v.InventoryQuantity > 0
	case strings.EqualFold(v.InventoryPolicy, "continue"):
		variant.Available = true
	}

	if len(v.PresentmentPrices) > 0 {
		variant.Currency = v.PresentmentPrices[0].Price.CurrencyCode
	}

	positional := []string{v.Option1, v.Option2, v.Option3}
	options := map[string]string{}
	for i, value := range positional {
		if value == "" {
			continue
		}
		name := fmt.Sprintf("Option %d", i+1)
		if i < len(optionNames) && optionNames[i] != "" {
			name = optionNames[i]
		}
		options[name] = value
	}
	if len(options) > 0 {
		variant.Options = options
	}
	return variant
}

// reconcileOptions fills empty option value lists from the values actually
// seen on variants, and synthesizes definitions when the feed omitted them.
func reconcileOptions(options []catalog.RawOption, variants []catalog.RawVariant) []catalog.RawOption {
	seen := map[string][]string{}
	order := []string{}
	for _, opt := range options {
		if _, ok := seen[opt.Name]; !ok {
			seen[opt.Name] = append([]string(nil), opt.Values...)
			order = append(order, opt.Name)
		}
	}
	for _, v := range variants {
		for name, value := range v.Options {
			values, ok := seen[name]
			if !ok {
				order = append(order, name)
			}
			if !contains(values, value) {
				seen[name] = append(values, value)
			}
		}
	}
	out := make([]catalog.RawOption, 0, len(order))
	for _, name := range order {
		values := seen[name]
		if len(values) == 0 {
			continue
		}
		out = append(out, catalog.RawOption{Name: name, Values: values})
	}
	return out
}

// resolveImage picks product image, then the images array, then the first
// variant's featured image.
func resolveImage(p feedProduct) string {
	if p.Image != nil && p.Image.Src != "" {
		return p.Image.Src
	}
	for _, img := range p.Images {
		if img.Src != "" {
			return img.Src
		}
	}
	for _, v := range p.Variants {
		if v.FeaturedImage != nil && v.FeaturedImage.Src != "" {
			return v.FeaturedImage.Src
		}
	}
	return ""
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// parseTags accepts both array form and the comma-joined string form.
func parseTags(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return trimAll(list)
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil && joined != "" {
		return trimAll(strings.Split(joined, ","))
	}
	return nil
}

func trimAll(list []string) []string {
	out := list[:0]
	for _, item := range list {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
