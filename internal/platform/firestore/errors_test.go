package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"finitefield.org/poster-web/internal/platform/config"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		code       codes.Code
		notFound   bool
		unavail    bool
		permission bool
	}{
		{name: "not found", code: codes.NotFound, notFound: true},
		{name: "unavailable", code: codes.Unavailable, unavail: true},
		{name: "deadline", code: codes.DeadlineExceeded, unavail: true},
		{name: "permission denied", code: codes.PermissionDenied, permission: true},
		{name: "unauthenticated", code: codes.Unauthenticated},
		{name: "unknown", code: codes.Unknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("products.get", status.Error(tc.code, "boom"))
			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound ||
				repoErr.IsUnavailable() != tc.unavail ||
				repoErr.IsPermissionDenied() != tc.permission {
				t.Fatalf("unexpected classification %+v", repoErr)
			}
			if got := repoErr.Error(); got != "products.get: rpc error: code = "+tc.code.String()+" desc = boom" {
				t.Fatalf("unexpected message %q", got)
			}
		})
	}
}

func TestWrapErrorPassesCancellationThrough(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.Canceled, "client gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected grpc cancel to map to context.Canceled, got %v", err)
	}
	if err := WrapError("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	inner := newError("", status.Error(codes.NotFound, "missing"))
	err := WrapError("products.get", inner)
	var repoErr *Error
	if !errors.As(err, &repoErr) || repoErr != inner {
		t.Fatalf("expected the same *Error instance")
	}
	if repoErr.op != "products.get" {
		t.Fatalf("expected op to be filled in, got %q", repoErr.op)
	}
}

func TestProviderRequiresProjectID(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	t.Setenv(envEmulatorHost, "")

	provider := NewProvider(config.FirestoreConfig{})
	if _, err := provider.Client(context.Background()); err == nil {
		t.Fatal("expected missing project error")
	}
	if err := provider.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := provider.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
