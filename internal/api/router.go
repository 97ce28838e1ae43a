package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/picshelf/internal/catalog"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *catalog.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Records.
	r.Get("/records", h.ListRecords)
	r.Delete("/records", h.DeleteRecords)
	r.Post("/records/used", h.SetUsed)
	r.Get("/records/*", h.GetRecord)
	r.Patch("/records/*", h.EditRecord)
	r.Post("/toggle/*", h.ToggleUsed)
	r.Get("/images/*", h.ServeImage)

	// Ingest.
	r.Post("/scan", h.Scan)

	// Annotation runs.
	r.Post("/annotations", h.StartAnnotation)
	r.Delete("/annotations", h.CancelAnnotation)

	// Dirty buffer.
	r.Get("/changes", h.ListChanges)
	r.Post("/changes/save", h.SaveChanges)
	r.Post("/changes/discard", h.DiscardChanges)

	r.Get("/status", h.Status)
	r.Get("/export", h.Export)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
