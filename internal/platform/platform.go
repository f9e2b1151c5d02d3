// Package platform classifies storefront platforms. The feed probe is
// authoritative; hostname and HTML marker heuristics cover stores that block
// or disable their feed.
package platform

import (
	"context"
	"net/url"
	"strings"
)

// Platform identifies a storefront platform family.
type Platform string

// Known platforms. Only feed-capable platforms are paginated by the catalog
// feed fetcher.
const (
	Shopify     Platform = "shopify"
	WooCommerce Platform = "woocommerce"
	BigCommerce Platform = "bigcommerce"
	Unknown     Platform = "unknown"
)

// FeedCapable reports whether the platform exposes a native paginated JSON
// product feed.
func (p Platform) FeedCapable() bool {
	return p == Shopify
}

// ProbeFunc checks whether the store's native product feed answers; it
// returns true when the feed endpoint yields at least a valid empty page.
type ProbeFunc func(ctx context.Context) bool

// HomepageFunc fetches the storefront homepage body for marker scanning.
type HomepageFunc func(ctx context.Context) ([]byte, error)

// htmlMarkers maps body substrings to platforms, checked in order.
var htmlMarkers = []struct {
	marker   string
	platform Platform
}{
	{"cdn.shopify.com", Shopify},
	{"shopify.theme", Shopify},
	{"x-shopify-stage", Shopify},
	{"woocommerce", WooCommerce},
	{"wp-content/plugins/woocommerce", WooCommerce},
	{"cdn11.bigcommerce.com", BigCommerce},
	{"bigcommerce.com/s-", BigCommerce},
}

// Detect classifies the store: feed probe first, then hostname, then
// homepage markers. It never errors; an unreachable store is Unknown.
func Detect(ctx context.Context, storeURL string, probe ProbeFunc, homepage HomepageFunc) Platform {
	if probe != nil && probe(ctx) {
		return Shopify
	}
	if p := fromHostname(storeURL); p != Unknown {
		return p
	}
	if homepage != nil {
		if body, err := homepage(ctx); err == nil {
			if p := fromMarkers(body); p != Unknown {
				return p
			}
		}
	}
	return Unknown
}

func fromHostname(storeURL string) Platform {
	u, err := url.Parse(storeURL)
	if err != nil {
		return Unknown
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.HasSuffix(host, ".myshopify.com"):
		return Shopify
	case strings.HasSuffix(host, ".mybigcommerce.com"):
		return BigCommerce
	}
	return Unknown
}

func fromMarkers(body []byte) Platform {
	lower := strings.ToLower(string(body))
	for _, entry := range htmlMarkers {
		if strings.Contains(lower, entry.marker) {
			return entry.platform
		}
	}
	return Unknown
}
