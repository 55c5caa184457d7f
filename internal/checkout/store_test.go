package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finitefield.org/poster-web/internal/catalog"
	"finitefield.org/poster-web/internal/platform/cookiesign"
)

func newStore(t *testing.T, opts ...Option) *CookieStore {
	t.Helper()
	codec, _, err := cookiesign.New("test-key")
	require.NoError(t, err)
	store, err := NewCookieStore(codec, opts...)
	require.NoError(t, err)
	return store
}

func cookieMap(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestSaveAndLoad(t *testing.T) {
	store := newStore(t, WithSecure(true))
	item := catalog.CheckoutItem{ID: "p1", Title: "Monsoon Skyline, A2", Price: 499, Size: "A2", Image: "https://cdn.example.com/b.jpg?x=1&y=2", CreatedAt: 1735732800000}

	rec := httptest.NewRecorder()
	require.NoError(t, store.Writer(rec).SaveCheckoutItem(context.Background(), item))

	cookies := cookieMap(rec)
	require.Len(t, cookies, 2)
	plain := cookies[CookieName]
	require.NotNil(t, plain)
	require.True(t, plain.Secure)
	require.False(t, plain.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, plain.SameSite)
	require.NotNil(t, cookies[SignatureCookieName])

	req := httptest.NewRequest(http.MethodGet, "/billing.html", nil)
	req.AddCookie(plain)
	req.AddCookie(cookies[SignatureCookieName])
	got, err := store.Load(req)
	require.NoError(t, err)
	require.Equal(t, item, got)
}

func TestCookieValueIsURIEncodedJSON(t *testing.T) {
	store := newStore(t)
	item := catalog.CheckoutItem{ID: "p1", Title: "Dawn + Dusk", Price: 1234.5, Size: "N/A", Image: "/assets/img/placeholder.svg", CreatedAt: 42}

	rec := httptest.NewRecorder()
	require.NoError(t, store.Writer(rec).SaveCheckoutItem(context.Background(), item))

	raw := cookieMap(rec)[CookieName].Value
	require.NotContains(t, raw, ",")
	require.NotContains(t, raw, `"`)
	require.NotContains(t, raw, "+")

	decoded, err := url.PathUnescape(raw)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(decoded), &fields))
	require.Equal(t, "Dawn + Dusk", fields["title"])
	require.Equal(t, 1234.5, fields["price"])
	require.Equal(t, "/assets/img/placeholder.svg", fields["image"])
	require.EqualValues(t, 42, fields["createdAt"])
}

func TestSaveRejectsOversizedItem(t *testing.T) {
	store := newStore(t)
	item := catalog.CheckoutItem{ID: "p1", Image: "https://cdn.example.com/" + strings.Repeat("x", 5000)}

	rec := httptest.NewRecorder()
	err := store.Writer(rec).SaveCheckoutItem(context.Background(), item)
	require.ErrorIs(t, err, ErrTooLarge)
	require.Empty(t, rec.Result().Cookies())
}

func TestLoadRejectsMissingOrForgedCookie(t *testing.T) {
	store := newStore(t)

	_, err := store.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.ErrorIs(t, err, ErrNoItem)

	rec := httptest.NewRecorder()
	require.NoError(t, store.Writer(rec).SaveCheckoutItem(context.Background(), catalog.CheckoutItem{ID: "p1", Price: 499}))
	sig := cookieMap(rec)[SignatureCookieName]

	forged := encodeURIComponent(`{"id":"p1","title":"","price":1,"size":"","image":"","createdAt":0}`)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: forged})
	req.AddCookie(sig)
	_, err = store.Load(req)
	require.True(t, errors.Is(err, cookiesign.ErrInvalidSignature), err)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: forged})
	_, err = store.Load(req)
	require.True(t, errors.Is(err, cookiesign.ErrInvalidSignature), err)
}

func TestWithMaxAge(t *testing.T) {
	store := newStore(t, WithMaxAge(time.Hour), WithMaxAge(-time.Minute))

	rec := httptest.NewRecorder()
	require.NoError(t, store.Writer(rec).SaveCheckoutItem(context.Background(), catalog.CheckoutItem{ID: "p1"}))

	for _, c := range rec.Result().Cookies() {
		require.Equal(t, 3600, c.MaxAge)
	}
}

func TestNewCookieStoreRequiresCodec(t *testing.T) {
	_, err := NewCookieStore(nil)
	require.Error(t, err)
}
