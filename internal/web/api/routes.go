package api

import (
	"net/http"

	"github.com/VForWaTer/metacatalog-api/internal/web/cache"
	"github.com/VForWaTer/metacatalog-api/internal/web/middleware"
	"github.com/VForWaTer/metacatalog-api/internal/web/ratelimit"
	"github.com/VForWaTer/metacatalog-api/internal/web/response"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// referenceCacheControl is sent with cached reference data
const referenceCacheControl = "public, max-age=300"

// Routes builds the router. Reference data is served with ETags and, when a cache is
// configured, from the response cache.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Compress(5))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, response.NewHTTPError(http.StatusNotFound, "route not found: "+r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, response.NewHTTPError(http.StatusMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path))
	})

	r.Get("/healthz", h.healthz)

	r.Route("/entries", func(r chi.Router) {
		r.Get("/", h.listEntries)
		r.Get("/{id}", h.getEntry)

		w := h.writes(r)
		w.Post("/", h.createEntry)
		w.Post("/form", h.createEntryFromForm)
		w.Post("/{id}/datasource", h.attachDatasource)
	})
	r.Get("/locations.json", h.entryLocations)

	r.Route("/authors", func(r chi.Router) {
		r.Get("/", h.listAuthors)
		r.Get("/{id}", h.getAuthor)
		h.writes(r).Post("/", h.createAuthor)
	})

	r.Group(func(r chi.Router) {
		r.Use(cache.Middleware(h.cache, h.cfg.CacheTTL, referenceCacheControl))
		r.Get("/licenses", h.listLicenses)
		r.Get("/licenses/{id}", h.getLicense)
		r.Get("/variables", h.listVariables)
		r.Get("/variables/{id}", h.getVariable)
		r.Get("/datatypes", h.listDatatypes)
	})

	if h.cfg.RootPath == "" {
		return r
	}
	root := chi.NewRouter()
	root.Mount(h.cfg.RootPath, r)
	return root
}

// writes applies the write rate limit when one is configured
func (h *Handler) writes(r chi.Router) chi.Router {
	if h.cfg.WriteLimiter == nil {
		return r
	}
	return r.With(ratelimit.Middleware(h.cfg.WriteLimiter, h.logger))
}

// Server wraps Routes with the default middleware chain
func (h *Handler) Server() http.Handler {
	return middleware.Default(h.logger).Then(h.Routes())
}
