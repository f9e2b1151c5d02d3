package urlcanon

import "testing"

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://Example.com:443/products/freesip?Color=Sugar+High&Size=24oz#reviews",
		"https://shop.example.com/en-ca/products/replacement-lids?Size=24oz",
		"https://shop.example.com/collections/all?page=2&sort=price",
		"http://example.com:80//a//b/",
		"https://example.com/",
	}
	for _, in := range inputs {
		first, err := Canonicalize(in, "")
		if err != nil {
			t.Fatalf("canonicalize %q: %v", in, err)
		}
		second, err := Canonicalize(first, "")
		if err != nil {
			t.Fatalf("re-canonicalize %q: %v", first, err)
		}
		if first != second {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, first, second)
		}
	}
}

func TestCanonicalizeEquivalences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b string
	}{
		{
			"tracking params",
			"https://example.com/page?utm_source=x&fbclid=123&q=shoes",
			"https://example.com/page?q=shoes",
		},
		{
			"param order",
			"https://example.com/page?b=2&a=1",
			"https://example.com/page?a=1&b=2",
		},
		{
			"default port",
			"https://example.com:443/page?a=1",
			"https://example.com/page?a=1",
		},
		{
			"variant query on product path",
			"https://owala.com/products/freesip?Color=Sugar+High&Size=24oz",
			"https://owala.com/products/freesip",
		},
		{
			"locale prefix",
			"https://owala.com/en-ca/products/replacement-lids?Size=24oz",
			"https://owala.com/products/replacement-lids",
		},
		{
			"undefined locale prefix",
			"https://owala.com/undefined-undefined/products/freesip",
			"https://owala.com/products/freesip",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ca, err := Canonicalize(tc.a, "")
			if err != nil {
				t.Fatalf("canonicalize %q: %v", tc.a, err)
			}
			cb, err := Canonicalize(tc.b, "")
			if err != nil {
				t.Fatalf("canonicalize %q: %v", tc.b, err)
			}
			if ca != cb {
				t.Fatalf("expected equal canonical forms, got %q vs %q", ca, cb)
			}
		})
	}
}

func TestCanonicalizeRejections(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "javascript:void(0)", "mailto:x@example.com", "ftp://example.com/file", "/relative/only"} {
		if got, err := Canonicalize(in, ""); err == nil {
			t.Fatalf("expected rejection for %q, got %q", in, got)
		}
	}
}

func TestCanonicalizeRelativeAgainstBase(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize("/products/bottle?variant=42", "https://shop.example.com")
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := "https://shop.example.com/products/bottle"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCanonicalizeKeepsNonLocalePrefix(t *testing.T) {
	t.Parallel()

	// /sale/ is not a locale prefix; /en/about is a locale prefix but not
	// followed by a product path. Neither collapses.
	for _, in := range []string{
		"https://example.com/sale/products/bottle",
		"https://example.com/en/about",
	} {
		got, err := Canonicalize(in, "")
		if err != nil {
			t.Fatalf("canonicalize %q: %v", in, err)
		}
		if got != in {
			t.Fatalf("unexpected rewrite: %q -> %q", in, got)
		}
	}
}

func TestScoreOrdering(t *testing.T) {
	t.Parallel()

	product := "https://example.com/products/bottle"
	collection := "https://example.com/collections/all"
	plain := "https://example.com/about"

	if Score(product) <= Score(collection) {
		t.Fatalf("product should outrank collection")
	}
	if Score(collection) <= Score(plain) {
		t.Fatalf("collection should outrank plain page")
	}

	urls := []string{plain, product, collection}
	SortByScore(urls)
	if urls[0] != product || urls[1] != collection || urls[2] != plain {
		t.Fatalf("unexpected order: %v", urls)
	}
}

func TestSortByScoreBreaksTiesLexically(t *testing.T) {
	t.Parallel()

	urls := []string{
		"https://example.com/products/b",
		"https://example.com/products/a",
	}
	SortByScore(urls)
	if urls[0] != "https://example.com/products/a" {
		t.Fatalf("expected lexical tie-break, got %v", urls)
	}
}
