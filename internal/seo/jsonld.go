// Package seo builds schema.org payloads embedded in product pages.
package seo

import (
	"encoding/json"
	"html/template"
	"strconv"

	"finitefield.org/poster-web/internal/catalog"
	"finitefield.org/poster-web/internal/format"
)

const (
	inStockURL    = "https://schema.org/InStock"
	outOfStockURL = "https://schema.org/OutOfStock"
)

// JSON marshals v compactly for a <script type="application/ld+json"> block. It returns "" on error.
func JSON(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return template.JS(b)
}

// Product describes p as a schema.org Product with a single Offer.
func Product(p catalog.Product, pageURL string, images []string) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "Product",
		"name":     p.DisplayTitle(),
		"sku":      p.ID,
	}
	if p.Description != "" {
		m["description"] = p.Description
	}
	if pageURL != "" {
		m["url"] = pageURL
	}
	if len(images) > 0 {
		m["image"] = images
	}
	if p.Size != "" {
		m["size"] = p.Size
	}

	availability := outOfStockURL
	if p.InStock() {
		availability = inStockURL
	}
	m["offers"] = map[string]any{
		"@type":         "Offer",
		"price":         strconv.FormatFloat(p.Price, 'f', 2, 64),
		"priceCurrency": format.Currency.String(),
		"availability":  availability,
	}
	return m
}
