package api

import "github.com/shopindex/shopindex/internal/catalog"

// compactProduct is the listing projection served by default.
type compactProduct struct {
	Handle       string   `json:"handle"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	PriceMin     *int64   `json:"price_min,omitempty"`
	PriceMax     *int64   `json:"price_max,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	Available    bool     `json:"available"`
	ImageURL     string   `json:"image_url,omitempty"`
	SummaryShort string   `json:"summary_short,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

func compactView(p catalog.Product) compactProduct {
	return compactProduct{
		Handle:       p.Handle,
		Title:        p.Title,
		URL:          p.URL,
		PriceMin:     p.PriceMin,
		PriceMax:     p.PriceMax,
		Currency:     p.Currency,
		Available:    p.Available,
		ImageURL:     p.ImageURL,
		SummaryShort: p.SummaryShort,
		Tags:         p.Tags,
	}
}

// manifestProduct is the full projection with variant-level detail and the
// discovery-source cross-reference.
type manifestProduct struct {
	ProductID    string            `json:"product_id"`
	Handle       string            `json:"handle"`
	Title        string            `json:"title"`
	URL          string            `json:"url"`
	Source       catalog.Source    `json:"source"`
	PriceMin     *int64            `json:"price_min,omitempty"`
	PriceMax     *int64            `json:"price_max,omitempty"`
	Currency     string            `json:"currency,omitempty"`
	Available    bool              `json:"available"`
	Description  string            `json:"description,omitempty"`
	Vendor       string            `json:"vendor,omitempty"`
	ProductType  string            `json:"product_type,omitempty"`
	ImageURL     string            `json:"image_url,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	OptionTokens []string          `json:"option_tokens,omitempty"`
	Options      []catalog.Option  `json:"options,omitempty"`
	Variants     []catalog.Variant `json:"variants,omitempty"`
	SummaryShort string            `json:"summary_short,omitempty"`
	SummaryLLM   string            `json:"summary_llm,omitempty"`
	ContentHash  string            `json:"content_hash"`
}

func manifestView(p catalog.Product) manifestProduct {
	return manifestProduct{
		ProductID:    p.ProductID,
		Handle:       p.Handle,
		Title:        p.Title,
		URL:          p.URL,
		Source:       p.Source,
		PriceMin:     p.PriceMin,
		PriceMax:     p.PriceMax,
		Currency:     p.Currency,
		Available:    p.Available,
		Description:  p.Description,
		Vendor:       p.Vendor,
		ProductType:  p.ProductType,
		ImageURL:     p.ImageURL,
		Tags:         p.Tags,
		OptionTokens: p.OptionTokens,
		Options:      p.Options,
		Variants:     p.Variants,
		SummaryShort: p.SummaryShort,
		SummaryLLM:   p.SummaryLLM,
		ContentHash:  p.ContentHash,
	}
}
