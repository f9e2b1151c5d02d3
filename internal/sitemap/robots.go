package sitemap

import (
	"context"
	"strings"

	"github.com/temoto/robotstxt"

	"github.com/shopindex/shopindex/internal/urlcanon"
)

// Seeds resolves the seed sitemap URLs for a store: sitemap directives from
// robots.txt first, then the fixed fallback paths when robots.txt is missing
// or lists none.
func (e *Engine) Seeds(ctx context.Context) []string {
	base := strings.TrimSuffix(e.base, "/")

	var seeds []string
	seen := map[string]struct{}{}
	add := func(raw string) {
		canon, err := urlcanon.Canonicalize(raw, base)
		if err != nil {
			return
		}
		if _, ok := seen[canon]; ok {
			return
		}
		seen[canon] = struct{}{}
		seeds = append(seeds, canon)
	}

	if body, err := e.fetch(ctx, base+"/robots.txt"); err == nil {
		if robots, err := robotstxt.FromBytes(body); err == nil {
			for _, sm := range robots.Sitemaps {
				add(sm)
			}
		}
	}

	if len(seeds) == 0 {
		for _, path := range fallbackPaths {
			add(base + path)
		}
	}
	return seeds
}
