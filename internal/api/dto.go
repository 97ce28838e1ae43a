package api

import (
	"github.com/starford/picshelf/internal/catalog"
	"github.com/starford/picshelf/internal/dirty"
	"github.com/starford/picshelf/internal/models"
)

// Record is a catalog record in API responses.
type Record = models.Record

// RecordListResponse wraps query results.
type RecordListResponse struct {
	Records []Record `json:"records" validate:"required"`
	Count   int      `json:"count" example:"10" validate:"required"`
}

// PathsRequest carries a set of record paths.
type PathsRequest struct {
	Paths []string `json:"paths" validate:"required"`
}

// SetUsedRequest is the body of POST /records/used.
type SetUsedRequest struct {
	Paths []string `json:"paths" validate:"required"`
	Used  bool     `json:"used"`
}

// EditRecordRequest is the body of PATCH /records/*. Omitted fields are left
// untouched; an empty string clears the field.
type EditRecordRequest struct {
	Keywords *string `json:"keywords,omitempty" example:"dog, park, frisbee"`
	UsedDate *string `json:"used_date,omitempty" example:"2024.05.01"`
}

// ScanRequest optionally overrides the configured folders.
type ScanRequest struct {
	Folders []string `json:"folders,omitempty"`
}

// ScanResponse reports a folder scan.
type ScanResponse struct {
	Added  int      `json:"added" example:"3" validate:"required"`
	Report []string `json:"report" validate:"required"`
}

// ChangesResponse lists unsaved edits.
type ChangesResponse struct {
	Dirty   bool           `json:"dirty"`
	Changes []dirty.Change `json:"changes" validate:"required"`
}

// AnnotationStartResponse is returned when a run is accepted.
type AnnotationStartResponse struct {
	RunID string `json:"run_id" example:"3f1c..." validate:"required"`
}

// SaveResponse aliases the catalog save result.
type SaveResponse = catalog.SaveResult

// StatusResponse aliases the catalog status.
type StatusResponse = catalog.Status
