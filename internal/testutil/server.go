// Package testutil spins up the web stack for handler tests.
package testutil

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/catalog"
	"finitefield.org/poster-web/internal/checkout"
	"finitefield.org/poster-web/internal/format"
	"finitefield.org/poster-web/internal/httpserver"
	"finitefield.org/poster-web/internal/middleware"
	"finitefield.org/poster-web/internal/platform/cookiesign"
	"finitefield.org/poster-web/internal/productpage"
)

// SigningKey signs session and checkout cookies in test servers.
const SigningKey = "test-signing-key"

// ServerOption customises the controller dependencies for tests.
type ServerOption func(*productpage.Deps)

// WithStore serves products from store.
func WithStore(store catalog.Store) ServerOption {
	return func(d *productpage.Deps) { d.Store = store }
}

// WithConnectivity overrides the online check.
func WithConnectivity(c productpage.ConnectivityChecker) ServerOption {
	return func(d *productpage.Deps) { d.Connectivity = c }
}

// WithIntents captures purchase intents.
func WithIntents(p productpage.IntentPublisher) ServerOption {
	return func(d *productpage.Deps) { d.Intents = p }
}

// NewServer constructs an httptest server running the web stack. Retries do not sleep.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	deps := productpage.Deps{
		Sleep:        productpage.Sleeper(noSleep),
		Prices:       format.NewPriceFormatter("en-IN"),
		Descriptions: format.NewMarkdown(),
		Meter:        noop.NewMeterProvider().Meter("test"),
		Placeholder:  "/assets/img/placeholder.svg",
	}
	for _, opt := range opts {
		opt(&deps)
	}
	controller, err := productpage.New(deps)
	if err != nil {
		t.Fatalf("productpage.New: %v", err)
	}

	codec, _, err := cookiesign.New(SigningKey)
	if err != nil {
		t.Fatalf("cookiesign.New: %v", err)
	}
	store, err := checkout.NewCookieStore(codec)
	if err != nil {
		t.Fatalf("checkout.NewCookieStore: %v", err)
	}
	renderer, err := httpserver.NewRenderer("", false)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	handler, err := httpserver.NewHandler(httpserver.Config{
		Logger:     zap.NewNop(),
		Renderer:   renderer,
		Controller: controller,
		Checkout:   store,
		Sessions:   middleware.NewSessions(codec, false),
		Signer:     codec,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
