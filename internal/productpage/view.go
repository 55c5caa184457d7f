package productpage

import (
	"html/template"
	"strconv"
	"time"

	"finitefield.org/poster-web/internal/catalog"
)

// State is the lifecycle position of one page load.
type State string

const (
	StateInit     State = "init"
	StateSkeleton State = "skeleton"
	StateNotFound State = "not_found"
	StateError    State = "error"
	StateRendered State = "rendered"
	// StateAborted means the caller went away before a result was ready. Nothing is rendered.
	StateAborted State = "aborted"
)

// Terminal reports whether no further transition can happen for this load.
func (s State) Terminal() bool {
	switch s {
	case StateNotFound, StateError, StateRendered, StateAborted:
		return true
	}
	return false
}

// View describes what the renderer must put into the product container.
type View struct {
	State     State
	ProductID string
	// Message is set for StateNotFound and StateError.
	Message  string
	Skeleton *SkeletonView
	Product  *ProductView
}

// SkeletonView lists the placeholder shapes shown while the product loads.
type SkeletonView struct {
	Thumbs      []struct{}
	DetailLines []string
}

// ProductView is the rendered gallery and detail panel.
type ProductView struct {
	ID          string
	Title       string
	AltText     string
	Price       string
	Size        string
	StockLabel  string
	InStock     bool
	Description template.HTML
	JSONLD      template.JS

	Placeholder string
	MainImage   string
	Active      int
	Thumbs      []Thumb

	// images holds the resolved gallery; empty when only the placeholder is shown.
	images  []string
	product catalog.Product
}

// Thumb is one entry of the thumbnail strip.
type Thumb struct {
	Index      int
	Src        string
	Alt        string
	Active     bool
	Selectable bool
}

// Images returns the resolved gallery images.
func (v ProductView) Images() []string {
	out := make([]string, len(v.images))
	copy(out, v.images)
	return out
}

// Select makes thumbnail index the main image and the only active thumbnail. Indexes without
// a gallery image leave the view unchanged and report false.
func (v ProductView) Select(index int) (ProductView, bool) {
	if index < 0 || index >= len(v.images) || v.images[index] == "" {
		return v, false
	}
	thumbs := make([]Thumb, len(v.Thumbs))
	for i, t := range v.Thumbs {
		t.Active = i == index
		thumbs[i] = t
	}
	v.Thumbs = thumbs
	v.MainImage = v.images[index]
	v.Active = index
	return v, true
}

// SelectParam applies a selection given as a query or form value. Invalid values are ignored.
func (v ProductView) SelectParam(raw string) ProductView {
	if raw == "" {
		return v
	}
	index, err := strconv.Atoi(raw)
	if err != nil {
		return v
	}
	selected, _ := v.Select(index)
	return selected
}

// CheckoutImage is the image recorded when buying: the main image, else the first gallery image.
func (v ProductView) CheckoutImage() string {
	if v.MainImage != "" {
		return v.MainImage
	}
	if len(v.images) > 0 {
		return v.images[0]
	}
	return ""
}

// Snapshot captures the product as rendered, with the current main image, for the buy form.
func (v ProductView) Snapshot() Snapshot {
	product := v.product
	if product.ID == "" {
		product.ID = v.ID
	}
	return Snapshot{
		ID:      product.ID,
		Title:   product.DisplayTitle(),
		Price:   product.Price,
		Size:    product.DisplaySize(),
		Image:   v.CheckoutImage(),
		InStock: v.InStock,
	}
}

// CheckoutItem snapshots the product and the current main image.
func (v ProductView) CheckoutItem(now time.Time) catalog.CheckoutItem {
	return v.Snapshot().CheckoutItem(now)
}

// Snapshot is the rendered product a buy acts on. The page carries it in a signed form field so
// buying needs no second lookup.
type Snapshot struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Price   float64 `json:"price"`
	Size    string  `json:"size"`
	Image   string  `json:"image"`
	InStock bool    `json:"inStock"`
}

// CheckoutItem stamps the snapshot with now in Unix milliseconds.
func (s Snapshot) CheckoutItem(now time.Time) catalog.CheckoutItem {
	return catalog.CheckoutItem{
		ID:        s.ID,
		Title:     s.Title,
		Price:     s.Price,
		Size:      s.Size,
		Image:     s.Image,
		CreatedAt: now.UnixMilli(),
	}
}
