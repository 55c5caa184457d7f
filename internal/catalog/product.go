// Package catalog holds the product record shown on the detail page and the store it is read from.
package catalog

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultTitle    = "Untitled Poster"
	DefaultAltText  = "Poster"
	DefaultSize     = "N/A"
	InStockLabel    = "In Stock"
	OutOfStockLabel = "Out of Stock"
)

var (
	// ErrProductNotFound means the document does not exist. It is never retried.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrPermissionDenied means the store refused access to the document.
	ErrPermissionDenied = errors.New("catalog: permission denied")
	// ErrStoreUnavailable means no store client could be obtained at all.
	ErrStoreUnavailable = errors.New("catalog: store unavailable")
)

// Store reads single products by document id.
type Store interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}

// Product is a record from the products collection. Every field is optional; absent or
// mistyped fields decode to their zero value and the display helpers supply defaults.
type Product struct {
	ID          string
	Title       string
	Price       float64
	Size        string
	// Stock keeps the stored number as is; fractional values count as in stock when positive.
	Stock       float64
	ImageURL    string
	ImageURLs   []string
	Description string
}

// ProductFromFields decodes a raw document, tolerating missing fields and loose numeric encodings.
func ProductFromFields(id string, fields map[string]any) Product {
	return Product{
		ID:          id,
		Title:       stringField(fields, "title"),
		Price:       numberField(fields, "price"),
		Size:        stringField(fields, "size"),
		Stock:       numberField(fields, "stock"),
		ImageURL:    stringField(fields, "imageUrl"),
		ImageURLs:   stringsField(fields, "imageUrls"),
		Description: stringField(fields, "description"),
	}
}

// DisplayTitle returns the title or the default title.
func (p Product) DisplayTitle() string {
	if p.Title == "" {
		return DefaultTitle
	}
	return p.Title
}

// AltText is the alt text of the main image.
func (p Product) AltText() string {
	if p.Title == "" {
		return DefaultAltText
	}
	return p.Title
}

// DisplaySize returns the size or "N/A".
func (p Product) DisplaySize() string {
	if p.Size == "" {
		return DefaultSize
	}
	return p.Size
}

// InStock reports whether the product can be bought.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// StockLabel is the human readable stock state.
func (p Product) StockLabel() string {
	if p.InStock() {
		return InStockLabel
	}
	return OutOfStockLabel
}

// Images returns the gallery: imageUrls when it has entries, else imageUrl alone, else nothing.
func (p Product) Images() []string {
	if len(p.ImageURLs) > 0 {
		out := make([]string, len(p.ImageURLs))
		copy(out, p.ImageURLs)
		return out
	}
	if p.ImageURL != "" {
		return []string{p.ImageURL}
	}
	return nil
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

func numberField(fields map[string]any, key string) float64 {
	var f float64
	switch v := fields[key].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func stringsField(fields map[string]any, key string) []string {
	var raw []any
	switch v := fields[key].(type) {
	case []any:
		raw = v
	case []string:
		raw = make([]any, len(v))
		for i, s := range v {
			raw[i] = s
		}
	default:
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
