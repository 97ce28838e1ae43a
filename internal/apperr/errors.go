// Package apperr holds the sentinel errors shared across picshelf packages.
package apperr

import "errors"

var (
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrInvalidFilterSpec   = errors.New("invalid filter spec")
	ErrInvalidField        = errors.New("invalid field")
	ErrInvalidValue        = errors.New("invalid value")
	ErrRecordNotFound      = errors.New("record not found")
	ErrIngestFolderMissing = errors.New("ingest folder missing")
	ErrAnnotationFailure   = errors.New("annotation failure")
	ErrRunInProgress       = errors.New("annotation run in progress")
)
