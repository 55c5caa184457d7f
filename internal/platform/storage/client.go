package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/platform/requestctx"
)

const (
	defaultSignedURLExpiry = 15 * time.Minute
	maxSignedURLExpiry     = 7 * 24 * time.Hour
	gsScheme               = "gs://"
)

var (
	errNoSigner       = errors.New("storage: signer is required")
	errInvalidBucket  = errors.New("storage: bucket name is required")
	errInvalidObject  = errors.New("storage: object name is required")
	errExpiryTooLong  = errors.New("storage: expiry exceeds permitted maximum")
	errNotGSReference = errors.New("storage: not a gs:// reference")
)

// Client generates V4 signed download URLs.
type Client struct {
	signer Signer
	expiry time.Duration
	now    func() time.Time
}

// ClientOption customises the Client.
type ClientOption func(*Client)

// WithExpiry sets how long generated URLs stay valid.
func WithExpiry(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.expiry = d
		}
	}
}

// WithClock injects the clock used for expiry timestamps.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a signed URL client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	client := &Client{
		signer: signer,
		expiry: defaultSignedURLExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.expiry > maxSignedURLExpiry {
		return nil, errExpiryTooLong
	}
	return client, nil
}

// SignedURL returns a GET URL for bucket/object.
func (c *Client) SignedURL(ctx context.Context, bucket, object string) (string, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return "", errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errInvalidObject
	}

	opts := &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        c.now().Add(c.expiry),
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	}
	signed, err := storage.SignedURL(bucket, object, opts)
	if err != nil {
		return "", fmt.Errorf("storage: sign download url: %w", err)
	}
	return signed, nil
}

// ParseGSReference splits gs://bucket/path/to/object.
func ParseGSReference(ref string) (bucket, object string, err error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, gsScheme) {
		return "", "", errNotGSReference
	}
	bucket, object, _ = strings.Cut(strings.TrimPrefix(trimmed, gsScheme), "/")
	if bucket == "" {
		return "", "", errInvalidBucket
	}
	if object == "" {
		return "", "", errInvalidObject
	}
	return bucket, object, nil
}

// ImageResolver turns stored image references into browser-loadable URLs.
type ImageResolver struct {
	client *Client
}

// NewImageResolver builds a resolver. A nil client leaves gs:// references unresolvable.
func NewImageResolver(client *Client) *ImageResolver {
	return &ImageResolver{client: client}
}

// ResolveImage passes http(s) URLs through and signs gs:// references. It returns "" for
// references that cannot be served so the caller can substitute a placeholder.
func (r *ImageResolver) ResolveImage(ctx context.Context, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if !strings.HasPrefix(ref, gsScheme) {
		if u, err := url.Parse(ref); err != nil || (u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https") {
			return ""
		}
		return ref
	}
	if r == nil || r.client == nil {
		return ""
	}
	bucket, object, err := ParseGSReference(ref)
	if err != nil {
		return ""
	}
	signed, err := r.client.SignedURL(ctx, bucket, object)
	if err != nil {
		requestctx.Logger(ctx).Warn("storage: sign image url failed", zap.String("bucket", bucket), zap.Error(err))
		return ""
	}
	return signed
}
