package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/shopindex/shopindex/internal/catalog"
)

// hashPayload fixes the set and order of semantically meaningful fields.
// Enrichment fields (embedding, summaries) are deliberately absent so
// re-enrichment never changes the hash.
type hashPayload struct {
	Title        string            `json:"title"`
	Handle       string            `json:"handle"`
	URL          string            `json:"url"`
	Description  string            `json:"description"`
	ProductType  string            `json:"product_type"`
	Tags         []string          `json:"tags"`
	PriceMin     *int64            `json:"price_min"`
	PriceMax     *int64            `json:"price_max"`
	Available    bool              `json:"available"`
	Variants     []catalog.Variant `json:"variants"`
	Options      []catalog.Option  `json:"options"`
	OptionTokens []string          `json:"option_tokens"`
}

// ContentHash digests a product's semantically meaningful fields. Identical
// inputs always yield identical hashes regardless of source field order.
func ContentHash(p catalog.Product) string {
	payload := hashPayload{
		Title:        p.Title,
		Handle:       p.Handle,
		URL:          p.URL,
		Description:  p.Description,
		ProductType:  p.ProductType,
		Tags:         sortedCopy(p.Tags),
		PriceMin:     p.PriceMin,
		PriceMax:     p.PriceMax,
		Available:    p.Available,
		Variants:     p.Variants,
		Options:      p.Options,
		OptionTokens: sortedCopy(p.OptionTokens),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		// Marshal of plain structs and maps of strings cannot fail; keep a
		// deterministic value anyway.
		data = []byte(p.Title + p.Handle + p.URL)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first 12 hex chars of sha256(input); used to derive
// stable product identifiers from handle+URL.
func ShortHash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:12]
}

func sortedCopy(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}
