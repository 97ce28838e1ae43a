package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/catalog"
	"github.com/starford/picshelf/internal/models"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *catalog.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *catalog.Service) *Handler {
	return &Handler{svc: svc}
}

// recordPath extracts the record path from the wildcard URL segment.
// Record paths are absolute, so the leading slash is kept. Encoded slashes
// (%2F) are accepted.
func recordPath(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	if !strings.HasPrefix(decoded, "/") && !isWindowsAbs(decoded) {
		decoded = "/" + decoded
	}
	return decoded
}

func isWindowsAbs(p string) bool {
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

// writeError maps catalog errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidFilterSpec),
		errors.Is(err, apperr.ErrInvalidValue),
		errors.Is(err, apperr.ErrInvalidField):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrRunInProgress):
		writeJSON(w, http.StatusConflict, errorBody("annotation already running"))
	case errors.Is(err, apperr.ErrAnnotationFailure):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// specFromQuery overlays URL query parameters on the default filter.
func specFromQuery(q url.Values, spec models.FilterSpec) (models.FilterSpec, error) {
	if q.Has("path") {
		spec.PathContains = q.Get("path")
	}
	if q.Has("keywords") {
		spec.KeywordsContains = q.Get("keywords")
	}
	if q.Has("used") {
		spec.Used = models.UsedFilter(strings.ToLower(q.Get("used")))
	}
	if q.Has("date_mode") {
		spec.Date.Mode = models.DateMode(strings.ToLower(q.Get("date_mode")))
	}
	if q.Has("from") {
		spec.Date.From = q.Get("from")
	}
	if q.Has("to") {
		spec.Date.To = q.Get("to")
	}
	if q.Has("combinator") {
		spec.Combinator = models.Combinator(strings.ToUpper(q.Get("combinator")))
	}
	if q.Has("order_by") {
		spec.OrderBy = q.Get("order_by")
	}
	if q.Has("direction") {
		spec.Direction = models.Direction(strings.ToUpper(q.Get("direction")))
	}
	if q.Has("limit") {
		n, err := strconv.Atoi(q.Get("limit"))
		if err != nil {
			return spec, fmt.Errorf("limit %q: %w", q.Get("limit"), apperr.ErrInvalidFilterSpec)
		}
		spec.Limit = n
	}
	return spec, nil
}

// ListRecords handles GET /api/records.
//
//	@Summary		Query records with the filter grammar
//	@Tags			records
//	@Produce		json
//	@Param			path		query		string	false	"Path substring"
//	@Param			keywords	query		string	false	"Keywords substring"
//	@Param			used		query		string	false	"Used filter"	Enums(any, true, false)
//	@Param			date_mode	query		string	false	"Date mode"		Enums(none, before, after, between)
//	@Param			from		query		string	false	"YYYY.MM.DD"
//	@Param			to			query		string	false	"YYYY.MM.DD"
//	@Param			combinator	query		string	false	"Combinator"	Enums(AND, OR)
//	@Param			limit		query		int		false	"Max rows"
//	@Param			order_by	query		string	false	"Sort column"	Enums(file_path, ai_keywords, used_date, used)
//	@Param			direction	query		string	false	"Sort direction"	Enums(ASC, DESC)
//	@Success		200			{object}	RecordListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	spec, err := specFromQuery(r.URL.Query(), h.svc.DefaultSpec())
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	recs, err := h.svc.Query(r.Context(), spec)
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: recs, Count: len(recs)})
}

// GetRecord handles GET /api/records/*.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	path := recordPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	rec, err := h.svc.Get(r.Context(), path)
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// EditRecord handles PATCH /api/records/*. Edits are staged, not saved.
//
//	@Summary		Stage keyword and used-date edits
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Record path"
//	@Param			body	body		EditRecordRequest	true	"Fields to edit"
//	@Success		202		{object}	ChangesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{path} [patch]
func (h *Handler) EditRecord(w http.ResponseWriter, r *http.Request) {
	path := recordPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req EditRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Keywords == nil && req.UsedDate == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("nothing to edit"))
		return
	}
	if _, err := h.svc.Get(r.Context(), path); err != nil {
		writeError(w, "edit record", err)
		return
	}
	if req.UsedDate != nil {
		if err := h.svc.EditUsedDate(path, *req.UsedDate); err != nil {
			writeError(w, "edit used date", err)
			return
		}
	}
	if req.Keywords != nil {
		h.svc.EditKeywords(path, *req.Keywords)
	}
	h.writeChanges(w, http.StatusAccepted)
}

// DeleteRecords handles DELETE /api/records.
//
//	@Summary		Delete records permanently
//	@Tags			records
//	@Accept			json
//	@Param			body	body	PathsRequest	true	"Paths to delete"
//	@Success		200		{object}	map[string]int
//	@Security		BearerAuth
//	@Router			/records [delete]
func (h *Handler) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req PathsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	n, err := h.svc.Delete(r.Context(), req.Paths)
	if err != nil {
		writeError(w, "delete records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// SetUsed handles POST /api/records/used.
func (h *Handler) SetUsed(w http.ResponseWriter, r *http.Request) {
	var req SetUsedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("paths are required"))
		return
	}
	if err := h.svc.SetUsed(r.Context(), req.Paths, req.Used); err != nil {
		writeError(w, "set used", err)
		return
	}
	h.writeChanges(w, http.StatusAccepted)
}

// ToggleUsed handles POST /api/toggle/*.
func (h *Handler) ToggleUsed(w http.ResponseWriter, r *http.Request) {
	path := recordPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	used, err := h.svc.ToggleUsed(r.Context(), path)
	if err != nil {
		writeError(w, "toggle used", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"path": path, "used": used})
}

// Scan handles POST /api/scan. An empty body scans the configured folders.
//
//	@Summary		Register new image files from folders
//	@Tags			ingest
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	false	"Folders override"
//	@Success		200		{object}	ScanResponse
//	@Security		BearerAuth
//	@Router			/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	folders := req.Folders
	if len(folders) == 0 {
		folders = h.svc.Folders()
	}
	res := h.svc.ScanFolders(r.Context(), folders)
	writeJSON(w, http.StatusOK, ScanResponse{Added: res.Added, Report: res.Report})
}

// StartAnnotation handles POST /api/annotations.
func (h *Handler) StartAnnotation(w http.ResponseWriter, r *http.Request) {
	var req PathsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	runID, err := h.svc.StartAnnotation(req.Paths)
	if err != nil {
		writeError(w, "start annotation", err)
		return
	}
	writeJSON(w, http.StatusAccepted, AnnotationStartResponse{RunID: runID})
}

// CancelAnnotation handles DELETE /api/annotations.
func (h *Handler) CancelAnnotation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": h.svc.CancelAnnotation()})
}

// ListChanges handles GET /api/changes.
func (h *Handler) ListChanges(w http.ResponseWriter, _ *http.Request) {
	h.writeChanges(w, http.StatusOK)
}

// SaveChanges handles POST /api/changes/save.
//
//	@Summary		Write all staged edits to the catalog
//	@Tags			changes
//	@Produce		json
//	@Success		200	{object}	SaveResponse
//	@Security		BearerAuth
//	@Router			/changes/save [post]
func (h *Handler) SaveChanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Save(r.Context()))
}

// DiscardChanges handles POST /api/changes/discard.
func (h *Handler) DiscardChanges(w http.ResponseWriter, _ *http.Request) {
	h.svc.Discard()
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		writeError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Export handles GET /api/export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="image_catalog.csv"`)
	if err := h.svc.Export(r.Context(), w); err != nil {
		slog.Error("export failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeChanges(w http.ResponseWriter, status int) {
	changes := h.svc.Pending()
	writeJSON(w, status, ChangesResponse{Dirty: len(changes) > 0, Changes: changes})
}
