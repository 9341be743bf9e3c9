// Package router sets up all HTTP routes and middleware chains for the
// taxonomy API. Reads are open; mutating routes additionally pass through
// the per-IP rate limiter.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"cmstaxonomy/internal/handlers"
	"cmstaxonomy/internal/middleware"
)

// Handlers bundles the handler groups mounted under /api.
type Handlers struct {
	Categories *handlers.Categories
	Tags       *handlers.Tags
	Content    *handlers.Content
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up. limiter may be nil to disable rate limiting.
func New(h Handlers, limiter *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecureHeaders)

	// Health check.
	r.Get("/health", healthHandler)

	limit := func(next http.Handler) http.Handler { return next }
	if limiter != nil {
		limit = limiter.Middleware
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/categories", func(r chi.Router) {
			c := h.Categories
			r.Get("/", c.Tree)
			r.Get("/{id}", c.Get)
			r.Get("/{id}/ancestors", c.Ancestors)
			r.Get("/{id}/descendants", c.Descendants)
			r.Get("/{id}/path", c.Path)
			r.Get("/{id}/meta", c.GetMeta)

			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/", c.Create)
				r.Post("/reorder", c.Reorder)
				r.Put("/{id}", c.Update)
				r.Delete("/{id}", c.Delete)
				r.Post("/{id}/restore", c.Restore)
				r.Post("/{id}/move", c.Move)
				r.Put("/{id}/meta", c.PutMeta)
			})
		})

		r.Route("/tags", func(r chi.Router) {
			t := h.Tags
			r.Get("/", t.List)
			r.Get("/{id}", t.Get)
			r.Get("/{id}/meta", t.GetMeta)

			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/", t.Create)
				r.Post("/merge", t.Merge)
				r.Put("/{id}", t.Update)
				r.Delete("/{id}", t.Delete)
				r.Post("/{id}/restore", t.Restore)
				r.Post("/{id}/recount", t.Recount)
				r.Put("/{id}/meta", t.PutMeta)
			})
		})

		r.Route("/content/{id}", func(r chi.Router) {
			c := h.Content
			r.Get("/taxonomy", c.Taxonomy)
			r.Get("/meta", c.GetMeta)

			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Put("/categories", c.SetCategories)
				r.Put("/tags", c.SetTags)
				r.Put("/meta", c.PutMeta)
				r.Post("/deleted", c.Deleted)
				r.Post("/restored", c.Restored)
				r.Post("/purged", c.Purged)
			})
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
