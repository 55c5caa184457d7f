package httpserver

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/middleware"
	"finitefield.org/poster-web/internal/platform/requestctx"
	"finitefield.org/poster-web/internal/productpage"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

//go:embed assets
var embeddedAssets embed.FS

// Assets returns the embedded static files rooted at the assets directory.
func Assets() fs.FS {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// Renderer executes page and fragment templates. In dev mode templates are reparsed on each call.
type Renderer struct {
	source fs.FS
	dev    bool
	cache  *template.Template
}

// NewRenderer parses templates from dir, or from the embedded set when dir is empty.
func NewRenderer(dir string, dev bool) (*Renderer, error) {
	var source fs.FS
	if strings.TrimSpace(dir) != "" {
		source = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embeddedTemplates, "templates")
		if err != nil {
			return nil, err
		}
		source = sub
	}
	r := &Renderer{source: source, dev: dev}
	if !dev {
		t, err := r.parse()
		if err != nil {
			return nil, err
		}
		r.cache = t
	}
	return r, nil
}

func (r *Renderer) parse() (*template.Template, error) {
	funcMap := template.FuncMap{
		"now":         time.Now,
		"viewURL":     viewURL,
		"pageURL":     pageURL,
		"productData": productData,
	}
	t, err := template.New("_root").Funcs(funcMap).ParseFS(r.source, "*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

func (r *Renderer) templates() (*template.Template, error) {
	if r.dev {
		return r.parse()
	}
	if r.cache == nil {
		return nil, fmt.Errorf("template not initialized")
	}
	return r.cache, nil
}

// Page renders the full layout.
func (r *Renderer) Page(w http.ResponseWriter, req *http.Request, status int, data pageData) {
	r.execute(w, req, status, "base", data)
}

// Fragment renders only the contents of the product container.
func (r *Renderer) Fragment(w http.ResponseWriter, req *http.Request, status int, data pageData) {
	r.execute(w, req, status, "product_container", data)
}

func (r *Renderer) execute(w http.ResponseWriter, req *http.Request, status int, name string, data any) {
	t, err := r.templates()
	if err != nil {
		requestctx.Logger(req.Context()).Error("template load failed", zap.Error(err))
		middleware.WriteError(w, req, http.StatusInternalServerError, "template error")
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		requestctx.Logger(req.Context()).Error("template exec failed", zap.String("template", name), zap.Error(err))
		middleware.WriteError(w, req, http.StatusInternalServerError, "template error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type pageData struct {
	Title     string
	Lang      string
	View      productpage.View
	Selected  string
	CSRFToken string
	// Snapshot is the signed rendered product posted back by the buy form.
	Snapshot string
}

type productViewData struct {
	Product   *productpage.ProductView
	CSRFToken string
	Snapshot  string
}

func productData(p *productpage.ProductView, csrf, snapshot string) productViewData {
	return productViewData{Product: p, CSRFToken: csrf, Snapshot: snapshot}
}

func productQuery(id string, index any) string {
	q := url.Values{}
	q.Set("id", id)
	if s := strings.TrimSpace(fmt.Sprint(index)); s != "" {
		q.Set("image", s)
	}
	return q.Encode()
}

func viewURL(id string, index any) string {
	return "/product/view?" + productQuery(id, index)
}

func pageURL(id string, index any) string {
	return "/product.html?" + productQuery(id, index)
}
