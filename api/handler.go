package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	openaio "github.com/vasialek/openaio-api"
	"github.com/vasialek/openaio-api/source"
)

// Getter is the read side of a memoized fetch, as implemented by openaio.MemoCache.
type Getter[K openaio.KeyConstraint, V openaio.ValueConstraint] interface {
	Get(context.Context, K) (V, error)
}

// Caches holds the memoized fetches the handlers read from.
type Caches struct {
	Drops        Getter[openaio.NoKey, []source.Drop]
	DropProducts Getter[string, []source.DropProduct]
	Categories   Getter[openaio.NoKey, []source.Category]
	Products     Getter[string, []source.Product]
}

type statsReporter interface {
	Stats() openaio.Stats
}

type handler struct {
	caches Caches
	logger log.Interface
}

// NewHandler returns the HTTP handler of the service.
// A nil logger means the apex/log package logger.
func NewHandler(caches Caches, logger log.Interface) http.Handler {
	if logger == nil {
		logger = log.Log
	}
	h := &handler{caches: caches, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /stock", h.stock)
	mux.HandleFunc("GET /categories", h.categories)
	mux.HandleFunc("GET /categories/{name}/products", h.categoryProducts)
	mux.HandleFunc("GET /drops", h.drops)
	mux.HandleFunc("GET /drops/{slug}/products", h.dropProducts)
	mux.HandleFunc("GET /drops/{slug}/products/{$}", h.dropProducts)
	mux.HandleFunc("GET /debug/caches", h.cacheStats)

	return withAccessLog(logger, withCORS(mux))
}

// stock returns the products of every category, in category order.
func (h *handler) stock(w http.ResponseWriter, r *http.Request) {
	categories, err := h.caches.Categories.Get(r.Context(), openaio.NoKey{})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	lists := make([][]source.Product, len(categories))
	g, ctx := errgroup.WithContext(r.Context())
	for i, category := range categories {
		g.Go(func() (err error) {
			lists[i], err = h.caches.Products.Get(ctx, category.Name)
			return
		})
	}
	if err := g.Wait(); err != nil {
		h.fail(w, r, err)
		return
	}

	total := 0
	for _, products := range lists {
		total += len(products)
	}
	products := make([]source.Product, 0, total)
	for _, list := range lists {
		products = append(products, list...)
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.caches.Categories.Get(r.Context(), openaio.NoKey{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *handler) categoryProducts(w http.ResponseWriter, r *http.Request) {
	categories, err := h.caches.Categories.Get(r.Context(), openaio.NoKey{})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	name := r.PathValue("name")
	i := slices.IndexFunc(categories, func(c source.Category) bool { return c.Name == name })
	if i < 0 {
		notFound(w)
		return
	}

	products, err := h.caches.Products.Get(r.Context(), categories[i].Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) drops(w http.ResponseWriter, r *http.Request) {
	drops, err := h.caches.Drops.Get(r.Context(), openaio.NoKey{})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, drops)
}

func (h *handler) dropProducts(w http.ResponseWriter, r *http.Request) {
	drops, err := h.caches.Drops.Get(r.Context(), openaio.NoKey{})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	slug := r.PathValue("slug")
	i := slices.IndexFunc(drops, func(d source.Drop) bool { return d.Slug == slug })
	if slug == "" || i < 0 {
		notFound(w)
		return
	}

	products, err := h.caches.DropProducts.Get(r.Context(), drops[i].URL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// cacheStats reports the counters of the caches that expose them.
func (h *handler) cacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := map[string]openaio.Stats{}
	for name, c := range map[string]any{
		"drops":        h.caches.Drops,
		"dropProducts": h.caches.DropProducts,
		"categories":   h.caches.Categories,
		"products":     h.caches.Products,
	} {
		if r, ok := c.(statsReporter); ok {
			stats[name] = r.Stats()
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func notFound(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
