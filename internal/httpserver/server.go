// Package httpserver serves the product detail page over HTTP.
package httpserver

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/checkout"
	custommw "finitefield.org/poster-web/internal/middleware"
	"finitefield.org/poster-web/internal/platform/cookiesign"
	"finitefield.org/poster-web/internal/platform/observability"
	"finitefield.org/poster-web/internal/productpage"
)

// Config holds runtime options for the HTTP server.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	Logger         *zap.Logger
	TraceProjectID string

	Renderer   *Renderer
	Controller *productpage.Controller
	Checkout   *checkout.CookieStore
	Sessions   *custommw.Sessions
	// Signer signs the product snapshot carried by the buy form.
	Signer *cookiesign.Codec
	// Assets defaults to the embedded asset set.
	Assets fs.FS
}

// New constructs the HTTP server with its middleware stack.
func New(cfg Config) (*http.Server, error) {
	handler, err := NewHandler(cfg)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       durationOr(cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       durationOr(cfg.IdleTimeout, 120*time.Second),
	}, nil
}

// NewHandler builds the router without binding it to a server.
func NewHandler(cfg Config) (http.Handler, error) {
	switch {
	case cfg.Renderer == nil:
		return nil, errors.New("httpserver: renderer is required")
	case cfg.Controller == nil:
		return nil, errors.New("httpserver: product controller is required")
	case cfg.Checkout == nil:
		return nil, errors.New("httpserver: checkout store is required")
	case cfg.Sessions == nil:
		return nil, errors.New("httpserver: sessions are required")
	case cfg.Signer == nil:
		return nil, errors.New("httpserver: signer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	assets := cfg.Assets
	if assets == nil {
		assets = Assets()
	}

	h := &productHandlers{
		renderer:   cfg.Renderer,
		controller: cfg.Controller,
		checkout:   cfg.Checkout,
		signer:     cfg.Signer,
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(observability.InjectLoggerMiddleware(logger))
	router.Use(observability.TraceMiddleware(cfg.TraceProjectID))
	router.Use(observability.RequestLoggerMiddleware())
	router.Use(observability.RecoveryMiddleware(logger))
	router.Use(chimw.Compress(5))
	router.Use(chimw.Timeout(60 * time.Second))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/assets/*", custommw.AssetsWithCache(assets, "/assets"))

	router.Group(func(r chi.Router) {
		r.Use(cfg.Sessions.Middleware)
		r.Use(custommw.HTMX)
		r.Use(cfg.Sessions.CSRF)

		r.Get("/product.html", h.page)
		r.Get("/product/view", h.view)
		r.Post("/product/buy", h.buy)
	})

	return router, nil
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
