// Package catalog owns the catalog session: it ties the record store, query
// engine, dirty buffer, ingest and annotation together behind one API used by
// the CLI, HTTP and MCP surfaces.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/picshelf/internal/annotate"
	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/dirty"
	"github.com/starford/picshelf/internal/export"
	"github.com/starford/picshelf/internal/index"
	"github.com/starford/picshelf/internal/ingest"
	"github.com/starford/picshelf/internal/metrics"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/query"
	"github.com/starford/picshelf/internal/sse"
	"github.com/starford/picshelf/internal/storage"
)

// Publisher receives live updates. *sse.Broker satisfies it.
type Publisher interface {
	PublishRecords(kind sse.RecordKind, paths ...string)
	PublishBuffer(dirty bool, records int)
	PublishAnnotation(ev annotate.Event)
}

// Status describes the session state.
type Status struct {
	Records           int    `json:"records"`
	Dirty             bool   `json:"dirty"`
	PendingRecords    int    `json:"pending_records"`
	AnnotationRunning bool   `json:"annotation_running"`
	RunID             string `json:"run_id,omitempty"`
}

// SaveResult reports a flush.
type SaveResult struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed,omitempty"`
}

// Service coordinates catalog operations.
type Service struct {
	store   index.RecordStore
	src     storage.Provider
	engine  *query.Engine
	buf     *dirty.Buffer
	scanner *ingest.Scanner
	orch    *annotate.Orchestrator

	pub     Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	folders      []string
	extensions   []string
	defaultSpec  models.FilterSpec
	retainFailed bool
	annotator    annotate.Func
	annotateOpts []annotate.Option
	runCtx       context.Context
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPublisher sets the live-update publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithFolders sets the scanned folders and recognised extensions.
func WithFolders(folders, extensions []string) Option {
	return func(s *Service) {
		s.folders = folders
		if len(extensions) > 0 {
			s.extensions = extensions
		}
	}
}

// WithDefaultSpec sets the filter used when a surface supplies none.
func WithDefaultSpec(spec models.FilterSpec) Option {
	return func(s *Service) { s.defaultSpec = spec }
}

// WithRetainFailedEdits keeps edits whose save failed in the buffer.
func WithRetainFailedEdits(retain bool) Option {
	return func(s *Service) { s.retainFailed = retain }
}

// WithAnnotator enables annotation runs using fn.
func WithAnnotator(fn annotate.Func, opts ...annotate.Option) Option {
	return func(s *Service) {
		s.annotator = fn
		s.annotateOpts = opts
	}
}

// WithRunContext sets the parent context of background annotation runs.
// Runs outlive the request that started them but stop with this context.
func WithRunContext(ctx context.Context) Option {
	return func(s *Service) { s.runCtx = ctx }
}

// WithClock overrides the time source used for usedDate.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a catalog service over store and src.
func NewService(store index.RecordStore, src storage.Provider, opts ...Option) *Service {
	s := &Service{
		store:       store,
		src:         src,
		engine:      query.NewEngine(store),
		logger:      slog.Default(),
		now:         time.Now,
		extensions:  storage.DefaultExtensions,
		defaultSpec: models.FilterSpec{Limit: 10},
		runCtx:      context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.buf = dirty.New(
		dirty.WithLogger(s.logger),
		dirty.WithRetainFailed(s.retainFailed),
		dirty.WithOnChange(s.bufferChanged),
	)
	s.scanner = ingest.NewScanner(store, src, s.logger, ingest.WithOnAdded(s.recordAdded))

	if s.annotator != nil {
		aopts := append([]annotate.Option{annotate.WithLogger(s.logger)}, s.annotateOpts...)
		if s.metrics != nil {
			aopts = append(aopts, annotate.WithObserver(func(kind annotate.EventKind, took time.Duration) {
				s.metrics.ObserveAnnotation(string(kind), took)
			}))
		}
		s.orch = annotate.New(s.buf, src, s.annotator, aopts...)
	}
	return s
}

// DefaultSpec returns the configured default filter.
func (s *Service) DefaultSpec() models.FilterSpec {
	return s.defaultSpec
}

// Folders returns the configured scan folders.
func (s *Service) Folders() []string {
	return s.folders
}

// Extensions returns the recognised image extensions.
func (s *Service) Extensions() []string {
	return s.extensions
}

// Query runs a filter specification.
func (s *Service) Query(ctx context.Context, spec models.FilterSpec) ([]models.Record, error) {
	return s.engine.Run(ctx, spec)
}

// Get returns one stored record.
func (s *Service) Get(ctx context.Context, path string) (*models.Record, error) {
	return s.store.Get(ctx, path)
}

// Scan ingests the configured folders.
func (s *Service) Scan(ctx context.Context) ingest.Result {
	return s.ScanFolders(ctx, s.folders)
}

// ScanFolders ingests the given folders.
func (s *Service) ScanFolders(ctx context.Context, folders []string) ingest.Result {
	res := s.scanner.Scan(ctx, folders, s.extensions)
	s.logger.Info("scan finished", slog.Int("added", res.Added), slog.Int("errors", len(res.Errors)))
	return res
}

// Watch registers new files in the configured folders until ctx ends.
func (s *Service) Watch(ctx context.Context) error {
	return s.scanner.Watch(ctx, s.folders, s.extensions)
}

// Delete removes records and their pending edits. It returns the number of
// rows removed.
func (s *Service) Delete(ctx context.Context, paths []string) (int, error) {
	n, err := s.store.DeleteMany(ctx, paths)
	if err != nil {
		return 0, err
	}
	s.buf.Drop(paths...)
	if s.metrics != nil {
		s.metrics.RecordsDeleted.Add(float64(n))
	}
	if s.pub != nil && n > 0 {
		s.pub.PublishRecords(sse.RecordsDeleted, paths...)
	}
	s.logger.Info("records deleted", slog.Int("requested", len(paths)), slog.Int("deleted", n))
	return n, nil
}

// EditKeywords stages a keyword edit. Blank text clears the keywords.
func (s *Service) EditKeywords(path, text string) {
	s.buf.Stage(path, models.FieldKeywords, textOrAbsent(text))
}

// EditUsedDate stages a usedDate edit. Blank text clears the date; anything
// else must be YYYY.MM.DD.
func (s *Service) EditUsedDate(path, text string) error {
	v := textOrAbsent(text)
	if d, ok := v.AsText(); ok && !models.ValidDate(d) {
		return fmt.Errorf("catalog: used date %q is not YYYY.MM.DD: %w", d, apperr.ErrInvalidValue)
	}
	s.buf.Stage(path, models.FieldUsedDate, v)
	return nil
}

// SetUsed stages the used flag for every path, with today's date when used.
// Nothing is staged unless every path is a stored record.
func (s *Service) SetUsed(ctx context.Context, paths []string, used bool) error {
	for _, p := range paths {
		if _, err := s.store.Get(ctx, p); err != nil {
			return err
		}
	}
	now := s.now()
	for _, p := range paths {
		s.buf.StageUsed(p, used, now)
	}
	return nil
}

// ToggleUsed flips the used flag of path, reading the pending value first and
// the stored value otherwise. It returns the new value.
func (s *Service) ToggleUsed(ctx context.Context, path string) (bool, error) {
	current := false
	if v, ok := s.buf.Pending(path, models.FieldUsed); ok {
		current, _ = v.AsFlag()
	} else {
		rec, err := s.store.Get(ctx, path)
		if err != nil {
			return false, err
		}
		current = rec.Used
	}
	s.buf.StageUsed(path, !current, s.now())
	return !current, nil
}

// Pending lists the unsaved edits.
func (s *Service) Pending() []dirty.Change {
	return s.buf.Snapshot()
}

// Save flushes the buffer to the store.
func (s *Service) Save(ctx context.Context) SaveResult {
	staged := s.buf.Snapshot()
	res := s.buf.Flush(ctx, s.store)

	out := SaveResult{Attempted: res.Attempted, Succeeded: res.Succeeded}
	failed := make(map[string]struct{}, len(res.Failures))
	for _, f := range res.Failures {
		if _, ok := failed[f.Path]; !ok {
			out.Failed = append(out.Failed, f.Path)
		}
		failed[f.Path] = struct{}{}
	}

	if s.metrics != nil {
		s.metrics.ObserveFlush(res.Succeeded, len(res.Failures))
	}
	if s.pub != nil {
		var updated []string
		seen := make(map[string]struct{}, len(staged))
		for _, c := range staged {
			if _, bad := failed[c.Path]; bad {
				continue
			}
			if _, dup := seen[c.Path]; dup {
				continue
			}
			seen[c.Path] = struct{}{}
			updated = append(updated, c.Path)
		}
		s.pub.PublishRecords(sse.RecordsUpdated, updated...)
	}
	s.logger.Info("changes saved",
		slog.Int("attempted", res.Attempted),
		slog.Int("succeeded", res.Succeeded),
		slog.Int("failed", len(res.Failures)))
	return out
}

// Discard drops every unsaved edit.
func (s *Service) Discard() {
	s.buf.Clear()
	s.logger.Info("changes discarded")
}

// StartAnnotation launches a background annotation run over paths.
func (s *Service) StartAnnotation(paths []string) (string, error) {
	if err := s.checkAnnotation(paths); err != nil {
		return "", err
	}
	return s.orch.Start(s.runCtx, paths, s.annotationEvent)
}

// RunAnnotation annotates paths and blocks until the run ends.
func (s *Service) RunAnnotation(ctx context.Context, paths []string) (annotate.Summary, error) {
	if err := s.checkAnnotation(paths); err != nil {
		return annotate.Summary{}, err
	}
	return s.orch.Run(ctx, paths, s.annotationEvent)
}

// CancelAnnotation stops the active run after its in-flight call. It
// reports whether a run was active.
func (s *Service) CancelAnnotation() bool {
	if s.orch == nil {
		return false
	}
	return s.orch.Cancel()
}

// Status reports record count, dirty state and annotation state.
func (s *Service) Status(ctx context.Context) (Status, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{Records: n, Dirty: s.buf.IsDirty(), PendingRecords: s.buf.Len()}
	if s.orch != nil {
		st.RunID, st.AnnotationRunning = s.orch.Running()
	}
	return st, nil
}

// Export writes every record as CSV.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	recs, err := s.store.FetchAll(ctx)
	if err != nil {
		return err
	}
	return export.WriteCSV(w, recs)
}

// ExportFile writes the CSV export atomically to path.
func (s *Service) ExportFile(ctx context.Context, path string) error {
	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		return err
	}
	return s.src.Write(path, buf.Bytes())
}

func (s *Service) checkAnnotation(paths []string) error {
	if s.orch == nil {
		return fmt.Errorf("catalog: annotation is not configured: %w", apperr.ErrAnnotationFailure)
	}
	if len(paths) == 0 {
		return fmt.Errorf("catalog: no paths to annotate: %w", apperr.ErrInvalidValue)
	}
	return nil
}

func (s *Service) recordAdded(path string) {
	if s.metrics != nil {
		s.metrics.RecordsIngested.Inc()
	}
	if s.pub != nil {
		s.pub.PublishRecords(sse.RecordsCreated, path)
	}
}

func (s *Service) bufferChanged(isDirty bool, records int) {
	if s.metrics != nil {
		s.metrics.PendingRecords.Set(float64(records))
	}
	if s.pub != nil {
		s.pub.PublishBuffer(isDirty, records)
	}
}

func (s *Service) annotationEvent(ev annotate.Event) {
	if s.pub != nil {
		s.pub.PublishAnnotation(ev)
	}
}

func textOrAbsent(text string) models.Value {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Absent()
	}
	return models.Text(text)
}
