package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func page(head string) []byte {
	return []byte(fmt.Sprintf("<html><head>%s</head><body><h1>Fallback H1</h1></body></html>", head))
}

func ldScript(payload string) string {
	return fmt.Sprintf(`<script type="application/ld+json">%s</script>`, payload)
}

func TestLinkedDataProduct(t *testing.T) {
	t.Parallel()

	html := page(ldScript(`{
		"@context": "https://schema.org",
		"@type": "Product",
		"name": "FreeSip Bottle",
		"sku": "FS-24",
		"description": "A bottle",
		"brand": {"@type": "Brand", "name": "Owala"},
		"image": ["https://cdn.example.com/a.jpg"],
		"offers": {
			"@type": "Offer",
			"price": "27.99",
			"priceCurrency": "USD",
			"availability": "https://schema.org/InStock"
		}
	}`))

	products := Products(html, "https://shop.example.com/products/freesip")
	require.Len(t, products, 1)
	p := products[0]
	require.Equal(t, "FreeSip Bottle", p.Title)
	require.Equal(t, "FS-24", p.ID)
	require.Equal(t, "Owala", p.Brand)
	require.Equal(t, "https://cdn.example.com/a.jpg", p.ImageURL)
	require.Equal(t, "27.99", p.Price)
	require.Equal(t, "https://schema.org/InStock", p.Available)
	require.Len(t, p.Variants, 1)
}

func TestLinkedDataGraphWrapper(t *testing.T) {
	t.Parallel()

	html := page(ldScript(`{
		"@context": "https://schema.org",
		"@graph": [
			{"@type": "WebSite", "name": "Shop"},
			{"@type": "Product", "name": "Lid", "offers": {"price": 9.5, "priceCurrency": "USD"}}
		]
	}`))

	products := Products(html, "https://shop.example.com/products/lid")
	require.Len(t, products, 1)
	require.Equal(t, "Lid", products[0].Title)
}

func TestLinkedDataItemList(t *testing.T) {
	t.Parallel()

	html := page(ldScript(`{
		"@type": "ItemList",
		"itemListElement": [
			{"@type": "ListItem", "item": {"@type": "Product", "name": "A", "sku": "1"}},
			{"@type": "ListItem", "item": {"@type": "Product", "name": "B", "sku": "2"}}
		]
	}`))

	products := Products(html, "https://shop.example.com/collections/all")
	require.Len(t, products, 2)
}

func TestAggregateOfferFlattensToVariants(t *testing.T) {
	t.Parallel()

	html := page(ldScript(`{
		"@type": "Product",
		"name": "Bottle",
		"offers": {
			"@type": "AggregateOffer",
			"lowPrice": "12.50",
			"highPrice": "13.50",
			"priceCurrency": "USD",
			"offers": [
				{"@type": "Offer", "sku": "S", "price": "12.50", "availability": "https://schema.org/OutOfStock"},
				{"@type": "Offer", "sku": "L", "price": "13.50", "availability": "https://schema.org/InStock"}
			]
		}
	}`))

	products := Products(html, "https://shop.example.com/products/bottle")
	require.Len(t, products, 1)
	require.Len(t, products[0].Variants, 2)
	require.Equal(t, "S", products[0].Variants[0].SKU)
}

func TestMetaFallbackOnlyForProductPages(t *testing.T) {
	t.Parallel()

	head := `<meta property="og:title" content="Steel Tumbler">
<meta property="product:price:amount" content="24.00">
<meta property="product:price:currency" content="USD">
<meta property="og:description" content="A tumbler">`

	products := Products(page(head), "https://shop.example.com/products/steel-tumbler")
	require.Len(t, products, 1)
	require.Equal(t, "Steel Tumbler", products[0].Title)
	require.Equal(t, "24.00", products[0].Price)

	// Same page shape on a non-product path yields nothing.
	require.Empty(t, Products(page(head), "https://shop.example.com/pages/about"))
}

func TestMetaFallbackRejectsNotFoundTitle(t *testing.T) {
	t.Parallel()

	head := `<meta property="og:title" content="Page Not Found">`
	require.Empty(t, Products(page(head), "https://shop.example.com/products/gone"))
}

func TestMetaFallbackFirstMatchWins(t *testing.T) {
	t.Parallel()

	head := `<meta property="og:title" content="OG Title">
<meta name="twitter:title" content="Twitter Title">`
	products := Products(page(head), "https://shop.example.com/products/x")
	require.Len(t, products, 1)
	require.Equal(t, "OG Title", products[0].Title)
}

func TestInPageDedupByID(t *testing.T) {
	t.Parallel()

	html := page(
		ldScript(`{"@type": "Product", "name": "A", "sku": "SAME"}`) +
			ldScript(`{"@type": "Product", "name": "A again", "sku": "SAME"}`))

	products := Products(html, "https://shop.example.com/products/a")
	require.Len(t, products, 1)
}

func TestMalformedJSONIgnored(t *testing.T) {
	t.Parallel()

	html := page(ldScript(`{"@type": "Product", "name": `) +
		ldScript(`{"@type": "Product", "name": "Valid"}`))
	products := Products(html, "https://shop.example.com/products/v")
	require.Len(t, products, 1)
	require.Equal(t, "Valid", products[0].Title)
}
