// Package checkout keeps the item chosen on the product page in browser cookies for the
// billing page to pick up.
//
// The checkoutItem cookie holds the item as URI-encoded JSON, readable with
// JSON.parse(decodeURIComponent(value)). The checkoutItemSig cookie holds a signed copy the
// server verifies against it.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"finitefield.org/poster-web/internal/catalog"
	"finitefield.org/poster-web/internal/platform/cookiesign"
)

const (
	// CookieName is the key the billing page reads.
	CookieName = "checkoutItem"
	// SignatureCookieName carries the signed copy of CookieName.
	SignatureCookieName = CookieName + "Sig"

	maxCookieBytes = 4096
	defaultMaxAge  = 24 * time.Hour
)

var (
	// ErrTooLarge is returned when the encoded item does not fit in a cookie.
	ErrTooLarge = errors.New("checkout: item exceeds cookie size limit")
	// ErrNoItem means the request carries no checkout cookie.
	ErrNoItem = errors.New("checkout: no item stored")
)

// CookieStore writes checkout items into the checkoutItem cookie pair.
type CookieStore struct {
	codec  *cookiesign.Codec
	secure bool
	maxAge time.Duration
}

// Option configures a CookieStore.
type Option func(*CookieStore)

// WithSecure marks the cookies Secure.
func WithSecure(secure bool) Option {
	return func(s *CookieStore) { s.secure = secure }
}

// WithMaxAge overrides the cookie lifetime.
func WithMaxAge(d time.Duration) Option {
	return func(s *CookieStore) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// NewCookieStore builds a store around codec.
func NewCookieStore(codec *cookiesign.Codec, opts ...Option) (*CookieStore, error) {
	if codec == nil {
		return nil, errors.New("checkout: cookie codec is required")
	}
	s := &CookieStore{codec: codec, maxAge: defaultMaxAge}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Writer binds the store to a response.
func (s *CookieStore) Writer(w http.ResponseWriter) *Writer {
	return &Writer{store: s, w: w}
}

// Load returns the item stored on r after checking it against its signature.
func (s *CookieStore) Load(r *http.Request) (catalog.CheckoutItem, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return catalog.CheckoutItem{}, ErrNoItem
	}
	raw, err := url.PathUnescape(c.Value)
	if err != nil {
		return catalog.CheckoutItem{}, fmt.Errorf("checkout: unescape cookie: %w", err)
	}
	var item catalog.CheckoutItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return catalog.CheckoutItem{}, fmt.Errorf("checkout: decode cookie: %w", err)
	}

	sig, err := r.Cookie(SignatureCookieName)
	if err != nil {
		return catalog.CheckoutItem{}, fmt.Errorf("checkout: %w: signature cookie missing", cookiesign.ErrInvalidSignature)
	}
	var signed catalog.CheckoutItem
	if err := s.codec.Decode(CookieName, sig.Value, &signed); err != nil {
		return catalog.CheckoutItem{}, fmt.Errorf("checkout: %w", err)
	}
	if signed != item {
		return catalog.CheckoutItem{}, fmt.Errorf("checkout: %w: item does not match signature", cookiesign.ErrInvalidSignature)
	}
	return item, nil
}

func (s *CookieStore) cookie(name, value string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.maxAge / time.Second),
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Writer sets the checkout cookies on one response.
type Writer struct {
	store *CookieStore
	w     http.ResponseWriter
}

// SaveCheckoutItem replaces any previously stored item.
func (w *Writer) SaveCheckoutItem(_ context.Context, item catalog.CheckoutItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("checkout: encode item: %w", err)
	}
	signed, err := w.store.codec.Encode(CookieName, item)
	if err != nil {
		return err
	}
	plain := w.store.cookie(CookieName, encodeURIComponent(string(payload)))
	sig := w.store.cookie(SignatureCookieName, signed)
	if len(plain.String()) > maxCookieBytes || len(sig.String()) > maxCookieBytes {
		return ErrTooLarge
	}
	http.SetCookie(w.w, plain)
	http.SetCookie(w.w, sig)
	return nil
}

// encodeURIComponent escapes s the way the browser function of the same name does for the
// characters JSON produces, so the value never needs cookie quoting.
func encodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
