// Package ingest registers image files found in watched folders as catalog
// records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/storage"
)

// Registrar is the part of the record store ingest writes to.
type Registrar interface {
	InsertIfAbsent(ctx context.Context, path string) (bool, error)
}

// AddedFunc is called for every path that became a new record.
type AddedFunc func(path string)

// Result summarises one scan.
type Result struct {
	Added  int      `json:"added"`
	Report []string `json:"report"`
	// Errors holds folder and insert failures; the scan continued past each.
	Errors []error `json:"-"`
}

// Scanner discovers image files and inserts records for unseen paths.
// Records are never removed by a scan.
type Scanner struct {
	store   Registrar
	src     storage.Provider
	logger  *slog.Logger
	onAdded AddedFunc
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithOnAdded registers a callback for newly inserted paths.
func WithOnAdded(fn AddedFunc) Option {
	return func(s *Scanner) {
		s.onAdded = fn
	}
}

// NewScanner creates a Scanner.
func NewScanner(store Registrar, src storage.Provider, logger *slog.Logger, opts ...Option) *Scanner {
	s := &Scanner{store: store, src: src, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks each folder (non-recursively) and inserts records for files
// whose extension is in exts. A missing folder or a failed insert is
// reported and skipped. Scan stops early only when ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, folders []string, exts []string) Result {
	var res Result

	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, err)
			res.Report = append(res.Report, "Scan cancelled.")
			break
		}

		dir := absFolder(folder)
		files, err := s.src.List(dir, exts)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				err = fmt.Errorf("ingest: %s: %w", dir, apperr.ErrIngestFolderMissing)
				res.Report = append(res.Report, fmt.Sprintf("Error: folder not found: %s", dir))
			} else {
				err = fmt.Errorf("ingest: %w", err)
				res.Report = append(res.Report, fmt.Sprintf("Error: cannot read folder %s: %v", dir, err))
			}
			s.logger.Warn("scan: folder skipped", slog.String("folder", dir), slog.String("error", err.Error()))
			res.Errors = append(res.Errors, err)
			continue
		}

		res.Report = append(res.Report, fmt.Sprintf("Scanning folder: %s", dir))
		for _, path := range files {
			inserted, err := s.store.InsertIfAbsent(ctx, path)
			if err != nil {
				s.logger.Warn("scan: insert failed", slog.String("path", path), slog.String("error", err.Error()))
				res.Errors = append(res.Errors, fmt.Errorf("ingest: %s: %w", path, err))
				res.Report = append(res.Report, fmt.Sprintf("Error: could not add %s: %v", filepath.Base(path), err))
				continue
			}
			if !inserted {
				continue
			}
			res.Added++
			res.Report = append(res.Report, fmt.Sprintf("New file added: %s", filepath.Base(path)))
			s.logger.Debug("scan: added", slog.String("path", path))
			if s.onAdded != nil {
				s.onAdded(path)
			}
		}
	}

	res.Report = append(res.Report, fmt.Sprintf("Scan finished. New files added: %d", res.Added))
	return res
}

// absFolder resolves folder so record paths are stable across working
// directories.
func absFolder(folder string) string {
	abs, err := filepath.Abs(folder)
	if err != nil {
		return filepath.Clean(folder)
	}
	return abs
}
