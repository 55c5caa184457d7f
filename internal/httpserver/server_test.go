package httpserver_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"finitefield.org/poster-web/internal/catalog"
	"finitefield.org/poster-web/internal/checkout"
	"finitefield.org/poster-web/internal/platform/cookiesign"
	"finitefield.org/poster-web/internal/platform/jobs"
	"finitefield.org/poster-web/internal/testutil"
)

func posterStore() *catalog.MemoryStore {
	return catalog.NewMemoryStore(map[string]map[string]any{
		"poster-1": {
			"title":       "Monsoon Skyline",
			"price":       1234.5,
			"size":        "A2",
			"stock":       3,
			"description": "Printed on **matte** stock.",
			"imageUrls":   []any{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg", "https://cdn.example.com/c.jpg"},
		},
		"sold-out": {
			"title":    "Harbour Lights",
			"price":    499,
			"stock":    0,
			"imageUrl": "https://cdn.example.com/h.jpg",
		},
		"bare": {},
	})
}

type flakyStore struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (s *flakyStore) GetProduct(context.Context, string) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return catalog.Product{}, s.err
}

// renderOnceStore serves the product on the first lookup and fails every later one.
type renderOnceStore struct {
	mu    sync.Mutex
	inner catalog.Store
	calls int
}

func (s *renderOnceStore) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if !first {
		return catalog.Product{}, errors.New("deadline exceeded")
	}
	return s.inner.GetProduct(ctx, id)
}

func (s *renderOnceStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type offline struct{}

func (offline) Online(context.Context) bool { return false }

type captureIntents struct {
	mu      sync.Mutex
	intents []jobs.PurchaseIntent
}

func (c *captureIntents) PublishPurchaseIntent(_ context.Context, intent jobs.PurchaseIntent) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents = append(c.intents, intent)
	return "evt", nil
}

func get(t *testing.T, client *http.Client, target string, htmx bool) (*http.Response, *goquery.Document) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, testutil.ParseHTML(t, body)
}

func noRedirectClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestProductPageRendersSkeleton(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))

	resp, doc := get(t, http.DefaultClient, ts.URL+"/product.html?id=poster-1", false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	container := doc.Find("#productContainer")
	require.Equal(t, 1, container.Length())
	require.Equal(t, 1, container.Find(".skeleton-main").Length())
	require.Equal(t, 4, container.Find(".skeleton-thumb").Length())
	require.Equal(t, 5, container.Find(".skeleton-line").Length())

	hxGet, ok := container.Find(".product-view").Attr("hx-get")
	require.True(t, ok)
	require.Equal(t, "/product/view?id=poster-1", hxGet)
}

func TestProductPageWithoutID(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))

	_, doc := get(t, http.DefaultClient, ts.URL+"/product.html", false)
	require.Equal(t, "No product specified.", strings.TrimSpace(doc.Find("#productContainer p.error").Text()))
	require.Equal(t, 0, doc.Find("[hx-get]").Length())
}

func TestProductViewFragmentSelectsImage(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))

	resp, doc := get(t, http.DefaultClient, ts.URL+"/product/view?id=poster-1&image=2", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/product.html?id=poster-1&image=2", resp.Header.Get("HX-Push-Url"))
	require.Equal(t, 0, doc.Find(".site-header").Length())

	src, _ := doc.Find("#mainImage").Attr("src")
	require.Equal(t, "https://cdn.example.com/c.jpg", src)

	active := doc.Find("img.thumb.active")
	require.Equal(t, 1, active.Length())
	idx, _ := active.Attr("data-index")
	require.Equal(t, "2", idx)
	require.Equal(t, 3, doc.Find("img.thumb").Length())

	require.Equal(t, "Monsoon Skyline", doc.Find(".details h1").Text())
	require.Equal(t, "₹1,234.50", doc.Find(".details .price").Text())
	require.Equal(t, "In Stock", strings.TrimSpace(doc.Find(".details .meta.in").Text()))
	require.Equal(t, "matte", doc.Find(".description strong").Text())

	_, disabled := doc.Find("#buyNowBtn").Attr("disabled")
	require.False(t, disabled)
	image, _ := doc.Find("input[name=image]").Attr("value")
	require.Equal(t, "2", image)

	requirePlaceholderFallback(t, doc.Find("#mainImage"))
	doc.Find("img.thumb").Each(func(_ int, thumb *goquery.Selection) {
		requirePlaceholderFallback(t, thumb)
		require.Equal(t, 1, thumb.Parent().Filter("a[hx-get]").Length())
	})
	require.Contains(t, doc.Find(`script[type="application/ld+json"]`).Text(), `"priceCurrency":"INR"`)
}

func requirePlaceholderFallback(t *testing.T, img *goquery.Selection) {
	t.Helper()
	onerror := testutil.MustAttr(t, img, "onerror")
	require.Contains(t, onerror, "this.onerror=null;this.src=")
	require.Contains(t, onerror, "placeholder.svg")
}

func TestProductViewPlaceholderAndOutOfStock(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))

	_, doc := get(t, http.DefaultClient, ts.URL+"/product/view?id=bare", true)
	src, _ := doc.Find("#mainImage").Attr("src")
	require.Equal(t, "/assets/img/placeholder.svg", src)
	thumbs := doc.Find("img.thumb")
	require.Equal(t, 1, thumbs.Length())
	require.Equal(t, "/assets/img/placeholder.svg", testutil.MustAttr(t, thumbs, "src"))
	require.True(t, thumbs.HasClass("active"))
	require.Equal(t, 0, thumbs.Parent().Filter("a").Length())
	requirePlaceholderFallback(t, thumbs)
	requirePlaceholderFallback(t, doc.Find("#mainImage"))
	require.Equal(t, "Untitled Poster", doc.Find(".details h1").Text())
	alt, _ := doc.Find("#mainImage").Attr("alt")
	require.Equal(t, "Poster", alt)

	_, doc = get(t, http.DefaultClient, ts.URL+"/product/view?id=sold-out", true)
	_, disabled := doc.Find("#buyNowBtn").Attr("disabled")
	require.True(t, disabled)
	require.Equal(t, "Out of Stock", strings.TrimSpace(doc.Find(".details .meta.out").Text()))
}

func TestProductViewTerminalMessages(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))
	_, doc := get(t, http.DefaultClient, ts.URL+"/product/view?id=missing", true)
	require.Equal(t, "Product not found.", strings.TrimSpace(doc.Find("p.error").Text()))

	ts = testutil.NewServer(t)
	_, doc = get(t, http.DefaultClient, ts.URL+"/product/view?id=poster-1", true)
	require.Equal(t, "App not connected. Please refresh the page.", strings.TrimSpace(doc.Find("p.error").Text()))

	store := &flakyStore{err: errors.Join(catalog.ErrPermissionDenied, errors.New("rules"))}
	ts = testutil.NewServer(t, testutil.WithStore(store), testutil.WithConnectivity(offline{}))
	resp, doc := get(t, http.DefaultClient, ts.URL+"/product/view?id=poster-1", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t,
		"Error loading product. Please try again later. You appear to be offline. (permission denied - check Firestore rules)",
		strings.TrimSpace(doc.Find("p.error").Text()))
	require.Equal(t, 2, store.calls)
}

func TestProductViewWithoutHTMXRendersFullPage(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))

	_, doc := get(t, http.DefaultClient, ts.URL+"/product/view?id=poster-1", false)
	require.Equal(t, "Monsoon Skyline | Poster Store", doc.Find("title").Text())
	require.Equal(t, 1, doc.Find("#productContainer #mainImage").Length())
}

func TestBuyStoresCheckoutItemAndRedirects(t *testing.T) {
	t.Parallel()
	intents := &captureIntents{}
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()), testutil.WithIntents(intents))
	client := noRedirectClient(t)

	_, doc := get(t, client, ts.URL+"/product/view?id=poster-1&image=1", false)
	form := testutil.BuyForm(t, doc)
	require.NotEmpty(t, form.Get("csrf_token"))
	require.NotEmpty(t, form.Get("snapshot"))
	require.Equal(t, "1", form.Get("image"))

	resp, err := client.PostForm(ts.URL+"/product/buy", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "billing.html", resp.Header.Get("Location"))

	item := checkoutItem(t, resp)
	require.Equal(t, "poster-1", item.ID)
	require.Equal(t, "Monsoon Skyline", item.Title)
	require.Equal(t, 1234.5, item.Price)
	require.Equal(t, "A2", item.Size)
	require.Equal(t, "https://cdn.example.com/b.jpg", item.Image)
	require.NotZero(t, item.CreatedAt)

	require.Len(t, intents.intents, 1)
	require.Equal(t, "poster-1", intents.intents[0].ProductID)
}

func TestBuyWithHTMXUsesHXRedirect(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))
	client := noRedirectClient(t)

	_, doc := get(t, client, ts.URL+"/product/view?id=poster-1", false)
	form := testutil.BuyForm(t, doc)
	token := form.Get("csrf_token")
	form.Del("csrf_token")
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/product/buy", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.Header.Set("X-CSRF-Token", token)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "billing.html", resp.Header.Get("HX-Redirect"))
	require.Equal(t, "https://cdn.example.com/a.jpg", checkoutItem(t, resp).Image)
}

func TestBuyOutOfStockDoesNotNavigate(t *testing.T) {
	t.Parallel()
	intents := &captureIntents{}
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()), testutil.WithIntents(intents))
	client := noRedirectClient(t)

	_, doc := get(t, client, ts.URL+"/product/view?id=sold-out", false)

	resp, err := client.PostForm(ts.URL+"/product/buy", testutil.BuyForm(t, doc))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Location"))
	for _, c := range resp.Cookies() {
		require.NotEqual(t, checkout.CookieName, c.Name)
	}
	require.Empty(t, intents.intents)
}

func TestBuyNavigatesWhenStoreFailsAfterRender(t *testing.T) {
	t.Parallel()
	store := &renderOnceStore{inner: posterStore()}
	ts := testutil.NewServer(t, testutil.WithStore(store))
	client := noRedirectClient(t)

	_, doc := get(t, client, ts.URL+"/product/view?id=poster-1&image=1", false)
	require.Equal(t, 1, store.Calls())

	resp, err := client.PostForm(ts.URL+"/product/buy", testutil.BuyForm(t, doc))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "billing.html", resp.Header.Get("Location"))
	require.Equal(t, 1, store.Calls())

	item := checkoutItem(t, resp)
	require.Equal(t, "poster-1", item.ID)
	require.Equal(t, "Monsoon Skyline", item.Title)
	require.Equal(t, "https://cdn.example.com/b.jpg", item.Image)
}

func TestBuyRejectsTamperedSnapshot(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))
	client := noRedirectClient(t)

	_, doc := get(t, client, ts.URL+"/product/view?id=sold-out", false)
	form := testutil.BuyForm(t, doc)
	form.Set("snapshot", form.Get("snapshot")+"x")

	resp, err := client.PostForm(ts.URL+"/product/buy", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, resp.Header.Get("Location"))
	for _, c := range resp.Cookies() {
		require.NotEqual(t, checkout.CookieName, c.Name)
	}
}

func TestBuyRequiresCSRFToken(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t, testutil.WithStore(posterStore()))

	resp, err := noRedirectClient(t).PostForm(ts.URL+"/product/buy", url.Values{"id": {"poster-1"}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHealthzAndAssets(t *testing.T) {
	t.Parallel()
	ts := testutil.NewServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/assets/img/placeholder.svg")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("ETag"))
}

func checkoutItem(t *testing.T, resp *http.Response) catalog.CheckoutItem {
	t.Helper()
	codec, _, err := cookiesign.New(testutil.SigningKey)
	require.NoError(t, err)
	store, err := checkout.NewCookieStore(codec)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/billing.html", nil)
	for _, c := range resp.Cookies() {
		if c.Name == checkout.CookieName || c.Name == checkout.SignatureCookieName {
			req.AddCookie(c)
		}
	}
	item, err := store.Load(req)
	require.NoError(t, err)
	return item
}
