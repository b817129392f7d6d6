package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/*", h.GetDocument)

	// Fetching.
	r.Post("/fetch", h.Fetch)
	r.Post("/batch", h.StartBatch)
	r.Get("/batch", h.BatchStatus)
	r.Delete("/batch", h.CancelBatch)

	// History.
	r.Get("/history", h.ListHistory)
	r.Get("/history/search", h.SearchHistory)

	r.Delete("/cache", h.ClearCache)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
