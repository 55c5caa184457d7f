package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/catalog"
	"finitefield.org/poster-web/internal/checkout"
	"finitefield.org/poster-web/internal/format"
	"finitefield.org/poster-web/internal/httpserver"
	custommw "finitefield.org/poster-web/internal/middleware"
	"finitefield.org/poster-web/internal/platform/config"
	"finitefield.org/poster-web/internal/platform/connectivity"
	"finitefield.org/poster-web/internal/platform/cookiesign"
	pfirestore "finitefield.org/poster-web/internal/platform/firestore"
	"finitefield.org/poster-web/internal/platform/jobs"
	"finitefield.org/poster-web/internal/platform/observability"
	"finitefield.org/poster-web/internal/platform/secrets"
	platformstorage "finitefield.org/poster-web/internal/platform/storage"
	"finitefield.org/poster-web/internal/productpage"
	firestoreRepo "finitefield.org/poster-web/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("web")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, closeStore, err := newProductStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise product store", zap.Error(err))
	}
	defer closeStore()

	images, err := newImageResolver(cfg)
	if err != nil {
		logger.Fatal("failed to initialise image signer", zap.Error(err))
	}

	intents, closeIntents, err := newIntentPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise purchase intent publisher", zap.Error(err))
	}
	defer closeIntents()

	controller, err := productpage.New(productpage.Deps{
		Store:        store,
		Connectivity: connectivity.NewProber(cfg.Connectivity.Target, cfg.Connectivity.Timeout),
		Images:       images,
		Prices:       format.NewPriceFormatter(cfg.Product.PriceLocale),
		Descriptions: format.NewMarkdown(),
		Intents:      intents,
		Attempts:     cfg.Product.RetryAttempts,
		RetryDelay:   cfg.Product.RetryDelay,
		Placeholder:  cfg.Product.PlaceholderImage,
		BillingPath:  cfg.Checkout.BillingPath,
	})
	if err != nil {
		logger.Fatal("failed to initialise product controller", zap.Error(err))
	}

	codec, ephemeral, err := cookiesign.New(cfg.Session.SigningKey)
	if err != nil {
		logger.Fatal("failed to initialise cookie signing", zap.Error(err))
	}
	if ephemeral {
		logger.Warn("using ephemeral cookie signing key; set WEB_SESSION_SIGNING_KEY to keep sessions across restarts")
	}
	secure := cfg.Environment == "prod"
	checkoutStore, err := checkout.NewCookieStore(codec, checkout.WithSecure(secure))
	if err != nil {
		logger.Fatal("failed to initialise checkout store", zap.Error(err))
	}

	renderer, err := httpserver.NewRenderer(cfg.Templates.Dir, cfg.Templates.DevMode)
	if err != nil {
		logger.Fatal("failed to parse templates", zap.Error(err))
	}

	server, err := httpserver.New(httpserver.Config{
		Address:        ":" + cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		Logger:         logger.Named("http"),
		TraceProjectID: cfg.Firestore.ProjectID,
		Renderer:       renderer,
		Controller:     controller,
		Checkout:       checkoutStore,
		Sessions:       custommw.NewSessions(codec, secure),
		Signer:         codec,
	})
	if err != nil {
		logger.Fatal("failed to build http server", zap.Error(err))
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("poster web listening", zap.Bool("devMode", cfg.Templates.DevMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	project, err := config.Lookup("WEB_SECRETS_PROJECT_ID")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(project) == "" {
		if project, err = config.Lookup("WEB_FIREBASE_PROJECT_ID"); err != nil {
			return nil, err
		}
	}
	fallback, err := config.Lookup("WEB_SECRETS_FALLBACK_FILE")
	if err != nil {
		return nil, err
	}

	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if p := strings.TrimSpace(project); p != "" {
		opts = append(opts, secrets.WithProject(p))
	}
	if f := strings.TrimSpace(fallback); f != "" {
		opts = append(opts, secrets.WithFallbackFile(f))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// newProductStore returns the fixture store when one is configured, else the Firestore repository.
// The Firestore client is dialled lazily so a misconfigured project surfaces as "not connected"
// on the page instead of stopping the server.
func newProductStore(cfg config.Config, logger *zap.Logger) (catalog.Store, func(), error) {
	if path := strings.TrimSpace(cfg.Catalog.FixtureFile); path != "" {
		store, err := catalog.LoadFixture(path)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("serving products from fixture", zap.String("path", path), zap.Int("count", len(store.Records())))
		return store, func() {}, nil
	}

	provider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithFirebase(cfg.Firebase))
	repo, err := firestoreRepo.NewProductRepository(provider, cfg.Catalog.Collection)
	if err != nil {
		return nil, func() {}, err
	}
	closeFn := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}
	return repo, closeFn, nil
}

func newImageResolver(cfg config.Config) (*platformstorage.ImageResolver, error) {
	key := strings.TrimSpace(cfg.Storage.SignerKey)
	if key == "" {
		return platformstorage.NewImageResolver(nil), nil
	}
	signer, err := platformstorage.NewServiceAccountSignerFromJSON([]byte(key))
	if err != nil {
		return nil, err
	}
	client, err := platformstorage.NewClient(signer, platformstorage.WithExpiry(cfg.Storage.SignedURLTTL))
	if err != nil {
		return nil, err
	}
	return platformstorage.NewImageResolver(client), nil
}

func newIntentPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (productpage.IntentPublisher, func(), error) {
	topicName := strings.TrimSpace(cfg.PubSub.IntentTopic)
	if topicName == "" {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, func() {}, err
	}
	topic := client.Topic(topicName)
	publisher, err := jobs.NewPubSubIntentPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, func() {}, err
	}
	closeFn := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, closeFn, nil
}
