package api

import (
	"net/http"
	"os"

	"github.com/starford/picshelf/internal/storage"
)

// ServeImage handles GET /images/*. Only files that are catalog records with
// one of the catalog's image extensions are served.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	path := recordPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if !storage.HasExtension(path, h.svc.Extensions()) {
		writeJSON(w, http.StatusBadRequest, errorBody("not an image path"))
		return
	}
	if _, err := h.svc.Get(r.Context(), path); err != nil {
		writeError(w, "get image record", err)
		return
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
