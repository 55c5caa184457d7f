// Package productpage loads a product for the detail page and turns the outcome into a view.
package productpage

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/catalog"
	"finitefield.org/poster-web/internal/format"
	"finitefield.org/poster-web/internal/platform/jobs"
	"finitefield.org/poster-web/internal/platform/requestctx"
	"finitefield.org/poster-web/internal/seo"
)

const (
	MessageMissingID    = "No product specified."
	MessageNotFound     = "Product not found."
	MessageNotConnected = "App not connected. Please refresh the page."
	MessageLoadFailed   = "Error loading product. Please try again later."
	OfflineHint         = " You appear to be offline."
	PermissionHint      = " (permission denied - check Firestore rules)"

	DefaultAttempts    = 2
	DefaultRetryDelay  = 350 * time.Millisecond
	DefaultPlaceholder = "https://via.placeholder.com/800x1000?text=No+Image"
	DefaultBillingPath = "billing.html"

	meterName = "finitefield.org/poster-web/productpage"
)

var (
	// ErrOutOfStock is returned by Buy when the product has no stock.
	ErrOutOfStock = errors.New("productpage: product is out of stock")

	skeletonDetailLines = []string{"lg", "md", "sm", "md", "sm"}
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ConnectivityChecker reports whether the runtime has network access.
type ConnectivityChecker interface {
	Online(ctx context.Context) bool
}

// ImageResolver maps stored image references to URLs, returning "" when a reference cannot be served.
type ImageResolver interface {
	ResolveImage(ctx context.Context, ref string) string
}

// PriceFormatter renders a price for display.
type PriceFormatter interface {
	Format(amount float64) string
}

// DescriptionRenderer turns stored description text into safe HTML.
type DescriptionRenderer interface {
	Render(src string) template.HTML
}

// CheckoutWriter persists the item handed to the billing page.
type CheckoutWriter interface {
	SaveCheckoutItem(ctx context.Context, item catalog.CheckoutItem) error
}

// IntentPublisher announces purchase intents to downstream consumers.
type IntentPublisher interface {
	PublishPurchaseIntent(ctx context.Context, intent jobs.PurchaseIntent) (string, error)
}

// Deps wires a Controller. Only Store is needed for a connected page; a nil Store renders
// every load as not connected.
type Deps struct {
	Store        catalog.Store
	Sleep        Sleeper
	Connectivity ConnectivityChecker
	Images       ImageResolver
	Prices       PriceFormatter
	Descriptions DescriptionRenderer
	Intents      IntentPublisher
	Clock        func() time.Time
	Meter        metric.Meter

	Attempts    int
	RetryDelay  time.Duration
	Placeholder string
	BillingPath string
	// PageURL builds the canonical page URL for structured data. Optional.
	PageURL func(id string) string
}

// Controller orchestrates one product page load. It holds no per-request state.
type Controller struct {
	store        catalog.Store
	sleep        Sleeper
	connectivity ConnectivityChecker
	images       ImageResolver
	prices       PriceFormatter
	descriptions DescriptionRenderer
	intents      IntentPublisher
	clock        func() time.Time
	attempts     metric.Int64Counter

	maxAttempts int
	retryDelay  time.Duration
	placeholder string
	billingPath string
	pageURL     func(string) string
}

// New builds a Controller, filling unset dependencies with defaults.
func New(deps Deps) (*Controller, error) {
	c := &Controller{
		store:        deps.Store,
		sleep:        deps.Sleep,
		connectivity: deps.Connectivity,
		images:       deps.Images,
		prices:       deps.Prices,
		descriptions: deps.Descriptions,
		intents:      deps.Intents,
		clock:        deps.Clock,
		maxAttempts:  deps.Attempts,
		retryDelay:   deps.RetryDelay,
		placeholder:  strings.TrimSpace(deps.Placeholder),
		billingPath:  strings.TrimSpace(deps.BillingPath),
		pageURL:      deps.PageURL,
	}
	if c.sleep == nil {
		c.sleep = TimerSleep
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.prices == nil {
		c.prices = fallbackPrices{}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultAttempts
	}
	if c.retryDelay < 0 {
		return nil, fmt.Errorf("productpage: negative retry delay %s", c.retryDelay)
	}
	if deps.RetryDelay == 0 {
		c.retryDelay = DefaultRetryDelay
	}
	if c.placeholder == "" {
		c.placeholder = DefaultPlaceholder
	}
	if c.billingPath == "" {
		c.billingPath = DefaultBillingPath
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	counter, err := meter.Int64Counter(
		"productpage.fetch.attempts",
		metric.WithDescription("Product lookups by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("productpage: create attempt counter: %w", err)
	}
	c.attempts = counter
	return c, nil
}

// TimerSleep waits on a timer, returning early with the context error on cancellation.
func TimerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Placeholder is the image shown when a product has no usable image.
func (c *Controller) Placeholder() string { return c.placeholder }

// BillingPath is where the browser goes after buying.
func (c *Controller) BillingPath() string { return c.billingPath }

// Skeleton is the in-flight view for id. An empty id yields the terminal missing-id view instead.
func (c *Controller) Skeleton(id string) View {
	if id == "" {
		return View{State: StateError, Message: MessageMissingID}
	}
	return View{
		State:     StateSkeleton,
		ProductID: id,
		Skeleton: &SkeletonView{
			Thumbs:      make([]struct{}, 4),
			DetailLines: append([]string(nil), skeletonDetailLines...),
		},
	}
}

// Load runs a full page load for id and returns the terminal view.
// Any non-empty id is looked up exactly as given.
func (c *Controller) Load(ctx context.Context, id string) View {
	if id == "" {
		return View{State: StateError, Message: MessageMissingID}
	}

	product, err := c.Fetch(ctx, id)
	if err != nil {
		return c.failureView(ctx, id, err)
	}
	return c.RenderProduct(ctx, product, id)
}

// Fetch reads id from the store. Failures other than not-found, store-unavailable and
// cancellation are retried after the configured delay until the attempt budget is spent,
// at which point a *FetchError is returned.
func (c *Controller) Fetch(ctx context.Context, id string) (catalog.Product, error) {
	if c.store == nil {
		c.record(ctx, "unavailable")
		return catalog.Product{}, catalog.ErrStoreUnavailable
	}

	logger := requestctx.Logger(ctx)
	var last error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		product, err := c.store.GetProduct(ctx, id)
		if err == nil {
			c.record(ctx, "ok")
			return product, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.record(ctx, "cancelled")
			return catalog.Product{}, ctxErr
		}
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			c.record(ctx, "not_found")
			return catalog.Product{}, catalog.ErrProductNotFound
		case errors.Is(err, catalog.ErrStoreUnavailable):
			c.record(ctx, "unavailable")
			logger.Error("productpage: store unavailable", zap.String("productId", id), zap.Error(err))
			return catalog.Product{}, err
		}

		c.record(ctx, "error")
		logger.Warn("productpage: fetch failed",
			zap.String("productId", id),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		last = err
		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return catalog.Product{}, err
			}
		}
	}
	return catalog.Product{}, &FetchError{Attempts: c.maxAttempts, Err: last}
}

// FetchError reports that every attempt failed.
type FetchError struct {
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("productpage: fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (c *Controller) failureView(ctx context.Context, id string, err error) View {
	switch {
	case ctx.Err() != nil:
		return View{State: StateAborted, ProductID: id}
	case errors.Is(err, catalog.ErrProductNotFound):
		return View{State: StateNotFound, ProductID: id, Message: MessageNotFound}
	case errors.Is(err, catalog.ErrStoreUnavailable):
		return View{State: StateError, ProductID: id, Message: MessageNotConnected}
	}

	msg := MessageLoadFailed
	if c.connectivity != nil && !c.connectivity.Online(ctx) {
		msg += OfflineHint
	}
	if errors.Is(err, catalog.ErrPermissionDenied) {
		msg += PermissionHint
	}
	return View{State: StateError, ProductID: id, Message: msg}
}

// RenderProduct builds the gallery and detail panel for p.
func (c *Controller) RenderProduct(ctx context.Context, p catalog.Product, id string) View {
	if p.ID == "" {
		p.ID = id
	}

	images := c.resolveImages(ctx, p.Images())
	main := c.placeholder
	thumbs := []Thumb{{Index: 0, Src: c.placeholder, Alt: "thumb 1", Active: true}}
	if len(images) > 0 {
		main = images[0]
		thumbs = make([]Thumb, len(images))
		for i, src := range images {
			thumbs[i] = Thumb{
				Index:      i,
				Src:        src,
				Alt:        "thumb " + strconv.Itoa(i+1),
				Active:     i == 0,
				Selectable: true,
			}
		}
	}

	view := &ProductView{
		ID:          id,
		Title:       p.DisplayTitle(),
		AltText:     p.AltText(),
		Price:       c.prices.Format(p.Price),
		Size:        p.DisplaySize(),
		StockLabel:  p.StockLabel(),
		InStock:     p.InStock(),
		Placeholder: c.placeholder,
		MainImage:   main,
		Thumbs:      thumbs,
		images:      images,
		product:     p,
	}
	if c.descriptions != nil {
		view.Description = c.descriptions.Render(p.Description)
	}
	pageURL := ""
	if c.pageURL != nil {
		pageURL = c.pageURL(id)
	}
	view.JSONLD = seo.JSON(seo.Product(p, pageURL, images))

	return View{State: StateRendered, ProductID: id, Product: view}
}

func (c *Controller) resolveImages(ctx context.Context, refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		resolved := ref
		if c.images != nil {
			resolved = c.images.ResolveImage(ctx, ref)
		}
		if resolved == "" {
			resolved = c.placeholder
		}
		out[i] = resolved
	}
	return out
}

// Buy records the checkout item for the rendered snapshot s and returns where to navigate.
// Persisting and publishing are best effort; only an out-of-stock product prevents navigation.
func (c *Controller) Buy(ctx context.Context, s Snapshot, w CheckoutWriter) (string, error) {
	if !s.InStock {
		return "", ErrOutOfStock
	}

	logger := requestctx.Logger(ctx)
	item := s.CheckoutItem(c.clock())
	if w != nil {
		if err := w.SaveCheckoutItem(ctx, item); err != nil {
			logger.Debug("productpage: checkout item not stored", zap.String("productId", item.ID), zap.Error(err))
		}
	}

	if c.intents != nil {
		eventID, err := c.intents.PublishPurchaseIntent(ctx, jobs.PurchaseIntent{
			ProductID: item.ID,
			Title:     item.Title,
			Price:     item.Price,
			Image:     item.Image,
			CreatedAt: item.CreatedAt,
		})
		if err != nil {
			logger.Warn("productpage: publish purchase intent failed", zap.String("productId", item.ID), zap.Error(err))
		} else {
			logger.Info("productpage: purchase intent published", zap.String("productId", item.ID), zap.String("eventId", eventID))
		}
	}
	return c.billingPath, nil
}

func (c *Controller) record(ctx context.Context, outcome string) {
	c.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

type fallbackPrices struct{}

func (fallbackPrices) Format(amount float64) string {
	return format.FallbackPrice(amount)
}
