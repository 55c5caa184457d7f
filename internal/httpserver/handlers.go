package httpserver

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"finitefield.org/poster-web/internal/checkout"
	custommw "finitefield.org/poster-web/internal/middleware"
	"finitefield.org/poster-web/internal/platform/cookiesign"
	"finitefield.org/poster-web/internal/platform/requestctx"
	"finitefield.org/poster-web/internal/productpage"
)

const (
	siteName  = "Poster Store"
	pageTitle = "Product | " + siteName
	pageLang  = "en"

	// snapshotField is the buy form field holding the signed rendered product.
	snapshotField = "snapshot"
)

type productHandlers struct {
	renderer   *Renderer
	controller *productpage.Controller
	checkout   *checkout.CookieStore
	signer     *cookiesign.Codec
}

// page serves the shell with the skeleton; the product itself arrives through /product/view.
func (h *productHandlers) page(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := h.controller.Skeleton(q.Get("id"))
	h.renderer.Page(w, r, http.StatusOK, h.data(r, view, q.Get("image")))
}

// view loads the product and answers with the container contents, or the full page for plain requests.
func (h *productHandlers) view(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	selected := q.Get("image")

	view := h.load(r, id, selected)
	if view.State == productpage.StateAborted {
		return
	}
	if id != "" && custommw.IsHTMX(r.Context()) {
		w.Header().Set("HX-Push-Url", pageURL(id, selected))
	}
	h.respond(w, r, http.StatusOK, view, selected)
}

// buy acts on the product exactly as it was rendered; the store is only consulted again to
// re-render an out-of-stock page.
func (h *productHandlers) buy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	selected := r.PostFormValue("image")

	var snap productpage.Snapshot
	if err := h.signer.Decode(snapshotField, r.PostFormValue(snapshotField), &snap); err != nil {
		requestctx.Logger(ctx).Warn("buy rejected: invalid product snapshot", zap.String("productId", r.PostFormValue("id")), zap.Error(err))
		custommw.WriteError(w, r, http.StatusBadRequest, "invalid product snapshot")
		return
	}

	target, err := h.controller.Buy(ctx, snap, h.checkout.Writer(w))
	if errors.Is(err, productpage.ErrOutOfStock) {
		view := h.load(r, snap.ID, selected)
		if view.State == productpage.StateAborted {
			return
		}
		status := http.StatusConflict
		if custommw.IsHTMX(ctx) {
			status = http.StatusOK
		}
		h.respond(w, r, status, view, selected)
		return
	}
	if err != nil {
		requestctx.Logger(ctx).Error("buy failed", zap.String("productId", snap.ID), zap.Error(err))
		custommw.WriteError(w, r, http.StatusInternalServerError, "unable to start checkout")
		return
	}
	custommw.Redirect(w, r, target)
}

func (h *productHandlers) load(r *http.Request, id, selected string) productpage.View {
	if id == "" {
		return h.controller.Skeleton(id)
	}
	view := h.controller.Load(r.Context(), id)
	if view.Product != nil {
		selectedView := view.Product.SelectParam(selected)
		view.Product = &selectedView
	}
	return view
}

func (h *productHandlers) respond(w http.ResponseWriter, r *http.Request, status int, view productpage.View, selected string) {
	data := h.data(r, view, selected)
	if custommw.IsHTMX(r.Context()) {
		h.renderer.Fragment(w, r, status, data)
		return
	}
	h.renderer.Page(w, r, status, data)
}

func (h *productHandlers) data(r *http.Request, view productpage.View, selected string) pageData {
	title := pageTitle
	if view.Product != nil {
		title = view.Product.Title + " | " + siteName
	}
	data := pageData{
		Title:     title,
		Lang:      pageLang,
		View:      view,
		Selected:  selected,
		CSRFToken: custommw.CSRFToken(r.Context()),
	}
	if view.Product != nil {
		snapshot, err := h.signer.Encode(snapshotField, view.Product.Snapshot())
		if err != nil {
			requestctx.Logger(r.Context()).Error("sign product snapshot", zap.String("productId", view.ProductID), zap.Error(err))
		}
		data.Snapshot = snapshot
	}
	return data
}
