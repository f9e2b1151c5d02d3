package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	trailingCommaDecimal = regexp.MustCompile(`,(\d{1,2})$`)
	nonPriceChars        = regexp.MustCompile(`[^\d.,\-]`)
)

// ToIntegerCents parses a numeric or currency-formatted price into integer
// minor-currency units, clamped non-negative. Currency symbols and thousands
// separators are stripped; a trailing ",NN" is treated as the decimal part.
// A nil result means the value was absent or unparseable.
func ToIntegerCents(value any) *int64 {
	switch v := value.(type) {
	case nil:
		return nil
	case int:
		return cents(float64(v))
	case int64:
		return cents(float64(v))
	case float64:
		return cents(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return cents(f)
		}
		return nil
	case string:
		return parsePriceString(v)
	}
	return nil
}

func parsePriceString(s string) *int64 {
	s = strings.TrimSpace(nonPriceChars.ReplaceAllString(s, ""))
	if s == "" {
		return nil
	}
	if m := trailingCommaDecimal.FindStringSubmatch(s); m != nil {
		// Trailing ",NN" is the decimal part; any remaining separators are
		// thousands marks.
		integer := s[:len(s)-len(m[0])]
		integer = strings.ReplaceAll(integer, ".", "")
		integer = strings.ReplaceAll(integer, ",", "")
		s = integer + "." + m[1]
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return cents(f)
}

func cents(f float64) *int64 {
	n := int64(math.Round(f * 100))
	if n < 0 {
		n = 0
	}
	return &n
}

// availability string tokens, lower-cased. Schema.org stock URIs are matched
// by suffix so both http and https forms coerce.
var availableTokens = map[string]bool{
	"instock":           true,
	"in stock":          true,
	"in_stock":          true,
	"limitedavailability": true,
	"preorder":          true,
	"available":         true,
	"true":              true,
	"yes":               true,
	"1":                 true,
	"outofstock":        false,
	"out of stock":      false,
	"out_of_stock":      false,
	"soldout":           false,
	"sold out":          false,
	"sold_out":          false,
	"discontinued":      false,
	"unavailable":       false,
	"false":             false,
	"no":                false,
	"0":                 false,
}

// ParseAvailability coerces booleans, numerics (>0 means available), and a
// fixed vocabulary of string tokens. A nil result means unknown.
func ParseAvailability(value any) *bool {
	switch v := value.(type) {
	case nil:
		return nil
	case bool:
		return boolPtr(v)
	case int:
		return boolPtr(v > 0)
	case int64:
		return boolPtr(v > 0)
	case float64:
		return boolPtr(v > 0)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return boolPtr(f > 0)
		}
		return nil
	case string:
		token := strings.ToLower(strings.TrimSpace(v))
		if token == "" {
			return nil
		}
		// Schema.org URIs like https://schema.org/InStock.
		if idx := strings.LastIndexByte(token, '/'); idx >= 0 {
			token = token[idx+1:]
		}
		if known, ok := availableTokens[token]; ok {
			return boolPtr(known)
		}
	}
	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
