// Package firestore implements catalog storage on Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"finitefield.org/poster-web/internal/catalog"
	pfirestore "finitefield.org/poster-web/internal/platform/firestore"
)

const defaultProductCollection = "products"

// ProductRepository reads poster documents and maps Firestore failures onto catalog errors.
type ProductRepository struct {
	base *pfirestore.BaseRepository[map[string]any]
}

// NewProductRepository binds the repository to collection, defaulting to "products".
func NewProductRepository(provider *pfirestore.Provider, collection string) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = defaultProductCollection
	}
	base := pfirestore.NewBaseRepository[map[string]any](provider, collection, nil, pfirestore.MapDecoder())
	return &ProductRepository{base: base}, nil
}

// GetProduct implements catalog.Store.
func (r *ProductRepository) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return catalog.Product{}, translateError(err)
	}
	return catalog.ProductFromFields(doc.ID, doc.Data), nil
}

// PutProduct upserts raw document fields. Used by the seeding tool.
func (r *ProductRepository) PutProduct(ctx context.Context, id string, fields map[string]any) (time.Time, error) {
	updated, err := r.base.Set(ctx, id, fields)
	if err != nil {
		return time.Time{}, translateError(err)
	}
	return updated, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pfirestore.ErrClientUnavailable) || errors.Is(err, pfirestore.ErrProviderClosed) {
		return fmt.Errorf("%w: %w", catalog.ErrStoreUnavailable, err)
	}

	var repoErr *pfirestore.Error
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return catalog.ErrProductNotFound
		case repoErr.IsPermissionDenied():
			return fmt.Errorf("%w: %w", catalog.ErrPermissionDenied, err)
		}
	}
	return err
}
