package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"finitefield.org/poster-web/internal/catalog"
	pconfig "finitefield.org/poster-web/internal/platform/config"
	pfirestore "finitefield.org/poster-web/internal/platform/firestore"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{name: "not found", in: pfirestore.WrapError("products.get", status.Error(codes.NotFound, "missing")), want: catalog.ErrProductNotFound},
		{name: "permission", in: pfirestore.WrapError("products.get", status.Error(codes.PermissionDenied, "rules")), want: catalog.ErrPermissionDenied},
		{name: "client", in: pfirestore.ErrClientUnavailable, want: catalog.ErrStoreUnavailable},
		{name: "closed", in: pfirestore.ErrProviderClosed, want: catalog.ErrStoreUnavailable},
		{name: "cancelled", in: context.Canceled, want: context.Canceled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := translateError(tc.in); !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTranslateErrorKeepsTransientFailures(t *testing.T) {
	in := pfirestore.WrapError("products.get", status.Error(codes.Unavailable, "offline"))
	got := translateError(in)
	if errors.Is(got, catalog.ErrProductNotFound) || errors.Is(got, catalog.ErrStoreUnavailable) {
		t.Fatalf("transient error misclassified: %v", got)
	}
	var repoErr *pfirestore.Error
	if !errors.As(got, &repoErr) || !repoErr.IsUnavailable() {
		t.Fatalf("expected unavailable repository error, got %v", got)
	}
}

func TestTranslateErrorUnauthenticatedIsNotPermissionDenied(t *testing.T) {
	got := translateError(pfirestore.WrapError("products.get", status.Error(codes.Unauthenticated, "no credentials")))
	if errors.Is(got, catalog.ErrPermissionDenied) {
		t.Fatalf("unauthenticated must not carry the permission hint: %v", got)
	}
	if errors.Is(got, catalog.ErrProductNotFound) || errors.Is(got, catalog.ErrStoreUnavailable) {
		t.Fatalf("unauthenticated must stay retryable: %v", got)
	}
}

func TestGetProductWithoutProjectIsUnavailable(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	repo, err := NewProductRepository(provider, "")
	if err != nil {
		t.Fatalf("NewProductRepository: %v", err)
	}
	if _, err := repo.GetProduct(context.Background(), "p1"); !errors.Is(err, catalog.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestNewProductRepositoryRequiresProvider(t *testing.T) {
	if _, err := NewProductRepository(nil, "products"); err == nil {
		t.Fatal("expected error for nil provider")
	}
}
