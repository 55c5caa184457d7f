package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string { return f.email }

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestSignedURLDownload(t *testing.T) {
	signer := &fakeSigner{email: "web@posters.iam.gserviceaccount.com"}
	now := time.Now()
	client, err := NewClient(signer, WithClock(func() time.Time { return now }), WithExpiry(10*time.Minute))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	raw, err := client.SignedURL(context.Background(), "poster-images", "products/p1/front.jpg")
	if err != nil {
		t.Fatalf("SignedURL returned error: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if !strings.Contains(parsed.Path, "poster-images/products/p1/front.jpg") {
		t.Fatalf("unexpected path %s", parsed.Path)
	}
	query := parsed.Query()
	if expires := query.Get("X-Goog-Expires"); expires != "600" && expires != "599" {
		t.Fatalf("expected ten minute expiry, got %s", expires)
	}
	if query.Get("X-Goog-Signature") == "" {
		t.Fatalf("expected signature in %s", parsed.RawQuery)
	}
	if len(signer.payloads) != 1 {
		t.Fatalf("expected one signing call, got %d", len(signer.payloads))
	}
}

func TestNewClientRequiresSigner(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	if _, err := NewClient(&fakeSigner{email: "a@b"}, WithExpiry(30*24*time.Hour)); !errors.Is(err, errExpiryTooLong) {
		t.Fatalf("expected errExpiryTooLong, got %v", err)
	}
}

func TestParseGSReference(t *testing.T) {
	bucket, object, err := ParseGSReference("gs://poster-images/a/b.png")
	if err != nil || bucket != "poster-images" || object != "a/b.png" {
		t.Fatalf("unexpected parse %q %q %v", bucket, object, err)
	}
	for _, bad := range []string{"https://x/y", "gs://", "gs://bucket", "gs://bucket/"} {
		if _, _, err := ParseGSReference(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestImageResolver(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(&fakeSigner{email: "web@posters.iam.gserviceaccount.com"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resolver := NewImageResolver(client)

	if got := resolver.ResolveImage(ctx, " https://cdn.example.com/a.jpg "); got != "https://cdn.example.com/a.jpg" {
		t.Fatalf("expected http url passthrough, got %q", got)
	}
	if got := resolver.ResolveImage(ctx, "javascript:alert(1)"); got != "" {
		t.Fatalf("expected unsafe scheme to be dropped, got %q", got)
	}
	if got := resolver.ResolveImage(ctx, "gs://poster-images/a.jpg"); !strings.HasPrefix(got, "https://storage.googleapis.com/poster-images/a.jpg?") {
		t.Fatalf("expected signed url, got %q", got)
	}
	if got := resolver.ResolveImage(ctx, ""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}

	unsigned := NewImageResolver(nil)
	if got := unsigned.ResolveImage(ctx, "gs://poster-images/a.jpg"); got != "" {
		t.Fatalf("expected gs reference without signer to be dropped, got %q", got)
	}

	failing, err := NewClient(&fakeSigner{email: "web@x", err: errors.New("kms down")})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if got := NewImageResolver(failing).ResolveImage(ctx, "gs://poster-images/a.jpg"); got != "" {
		t.Fatalf("expected signing failure to yield empty, got %q", got)
	}
}
