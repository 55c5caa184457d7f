// Command seed writes the products of a YAML fixture into the Firestore catalog collection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/catalog"
	"finitefield.org/poster-web/internal/platform/config"
	pfirestore "finitefield.org/poster-web/internal/platform/firestore"
	"finitefield.org/poster-web/internal/platform/observability"
	"finitefield.org/poster-web/internal/platform/secrets"
	firestoreRepo "finitefield.org/poster-web/internal/repositories/firestore"
)

func main() {
	var (
		fixturePath = flag.String("fixture", "fixtures/products.yaml", "YAML fixture to import")
		collection  = flag.String("collection", "", "target collection (defaults to WEB_CATALOG_COLLECTION)")
		envFile     = flag.String("env", "", "optional .env file")
		dryRun      = flag.Bool("dry-run", false, "print the documents without writing")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger = logger.Named("seed")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, logger, *fixturePath, *collection, *envFile, *dryRun); err != nil {
		logger.Fatal("seed failed", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger, fixturePath, collection, envFile string, dryRun bool) error {
	store, err := catalog.LoadFixture(fixturePath)
	if err != nil {
		return err
	}
	records := store.Records()
	if len(records) == 0 {
		return errors.New("fixture contains no products")
	}

	if dryRun {
		for _, rec := range records {
			p := catalog.ProductFromFields(rec.ID, rec.Fields)
			logger.Info("product",
				zap.String("id", rec.ID),
				zap.String("title", p.DisplayTitle()),
				zap.Float64("price", p.Price),
				zap.Float64("stock", p.Stock),
				zap.Int("images", len(p.Images())),
			)
		}
		return nil
	}

	var loadOpts []config.Option
	if envFile != "" {
		loadOpts = append(loadOpts, config.WithEnvFile(envFile))
	}
	project, err := config.Lookup("WEB_SECRETS_PROJECT_ID", loadOpts...)
	if err != nil {
		return err
	}
	fetcherOpts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if p := strings.TrimSpace(project); p != "" {
		fetcherOpts = append(fetcherOpts, secrets.WithProject(p))
	}
	fetcher, err := secrets.NewFetcher(ctx, fetcherOpts...)
	if err != nil {
		return err
	}
	defer fetcher.Close()

	cfg, err := config.Load(ctx, append(loadOpts, config.WithSecretResolver(fetcher))...)
	if err != nil {
		return err
	}
	if cfg.Firestore.ProjectID == "" {
		return errors.New("WEB_FIRESTORE_PROJECT_ID is required to seed Firestore")
	}
	if collection == "" {
		collection = cfg.Catalog.Collection
	}

	provider := pfirestore.NewProvider(cfg.Firestore,
		pfirestore.WithFirebase(cfg.Firebase),
		pfirestore.WithDialTimeout(30*time.Second),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	repo, err := firestoreRepo.NewProductRepository(provider, collection)
	if err != nil {
		return err
	}

	for _, rec := range records {
		updated, err := repo.PutProduct(ctx, rec.ID, rec.Fields)
		if err != nil {
			return fmt.Errorf("write %s: %w", rec.ID, err)
		}
		logger.Info("product written", zap.String("collection", collection), zap.String("id", rec.ID), zap.Time("updateTime", updated))
	}
	logger.Info("seed complete", zap.Int("count", len(records)))
	return nil
}
