// Package urlcanon normalizes storefront URLs and scores them for crawl
// prioritization. Everything here is pure: no I/O, and canonicalization is
// idempotent so already-canonical URLs pass through unchanged.
package urlcanon

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// trackingParams are dropped from every URL. Prefix entries match any
// parameter starting with that prefix.
var trackingPrefixes = []string{"utm_", "mc_", "pk_", "piwik_", "hsa_"}

var trackingNames = map[string]struct{}{
	"fbclid":      {},
	"gclid":       {},
	"gclsrc":      {},
	"dclid":       {},
	"msclkid":     {},
	"ttclid":      {},
	"twclid":      {},
	"igshid":      {},
	"yclid":       {},
	"ref":         {},
	"ref_src":     {},
	"referrer":    {},
	"source":      {},
	"_ga":         {},
	"_gl":         {},
	"_ke":         {},
	"srsltid":     {},
	"affiliate":   {},
	"campaign_id": {},
}

// localePrefix matches storefront locale path prefixes like /en/ or /en-ca/.
// Some storefronts emit a broken /undefined-undefined/ prefix when their
// locale picker misfires; it collapses the same way.
var localePrefix = regexp.MustCompile(`^[a-z]{2}(-[a-z]{2})?$`)

var productPathMarkers = []string{"/products/", "/product/", "/item/", "/items/", "/dp/", "/p/"}

var collectionPathMarkers = []string{"/collections/", "/collection/", "/category/", "/categories/", "/shop/"}

// Canonicalize resolves raw against base (base may be empty for absolute
// URLs) and applies the full normalization rule set. It returns an error for
// malformed input and for non-HTTP schemes.
func Canonicalize(raw, base string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host")
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Path = normalizePath(u.Path)
	u.RawPath = ""

	if IsProductPath(u.Path) {
		// Option and variant query strings all point at the same product.
		u.RawQuery = ""
	} else {
		u.RawQuery = normalizeQuery(u.Query())
	}

	return u.String(), nil
}

func normalizePath(path string) string {
	if path == "" {
		return ""
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	return collapseLocalePrefix(path)
}

// collapseLocalePrefix hoists /xx/products/... and /xx-yy/products/... to
// /products/... so locale mirrors of the same product page collapse.
func collapseLocalePrefix(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	first, rest, found := strings.Cut(trimmed, "/")
	if !found {
		return path
	}
	lower := strings.ToLower(first)
	if lower != "undefined-undefined" && !localePrefix.MatchString(lower) {
		return path
	}
	hoisted := "/" + rest
	if !IsProductPath(hoisted) {
		return path
	}
	return hoisted
}

// normalizeQuery drops tracking parameters and renders the remainder sorted
// by key then value for stable ordering.
func normalizeQuery(values url.Values) string {
	type pair struct{ k, v string }
	var pairs []pair
	for key, list := range values {
		if isTrackingParam(key) {
			continue
		}
		for _, v := range list {
			pairs = append(pairs, pair{key, v})
		}
	}
	if len(pairs) == 0 {
		return ""
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})
	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.v))
	}
	return sb.String()
}

func isTrackingParam(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := trackingNames[lower]; ok {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// IsProductPath reports whether a path looks like a product page. The
// trailing-slash variant is handled so /products/x and bare /products differ.
func IsProductPath(path string) bool {
	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, "/") {
		lower += "/"
	}
	for _, marker := range productPathMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			// Marker must be followed by a slug, not end the path.
			if idx+len(marker) < len(lower) {
				return true
			}
		}
	}
	return false
}

// IsCollectionPath reports whether a path looks like a collection or listing
// page.
func IsCollectionPath(path string) bool {
	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, "/") {
		lower += "/"
	}
	for _, marker := range collectionPathMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// SameHost reports whether a URL shares the (lower-cased) host of base,
// ignoring a leading www.
func SameHost(rawURL, base string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	b, err := url.Parse(base)
	if err != nil {
		return false
	}
	return stripWWW(strings.ToLower(u.Hostname())) == stripWWW(strings.ToLower(b.Hostname()))
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
