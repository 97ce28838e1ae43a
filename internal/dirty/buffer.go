// Package dirty holds pending field edits until they are flushed to the
// record store in one batch.
//
// A Buffer is safe for concurrent use. Every write and every change of the
// dirty flag happens under a single mutex.
package dirty

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/starford/picshelf/internal/models"
)

// Updater is the write side of the record store used by Flush.
type Updater interface {
	UpdateField(ctx context.Context, path string, field models.Field, value models.Value) error
}

// Change is one pending (path, field, value) triple.
type Change struct {
	Path  string       `json:"path"`
	Field models.Field `json:"field"`
	Value models.Value `json:"value"`
}

// Failure is a change that could not be written.
type Failure struct {
	Change
	Err error `json:"-"`
}

// FlushResult reports the outcome of a flush.
type FlushResult struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Failures  []Failure `json:"-"`
}

// ChangeFunc observes dirty-state transitions: whether the buffer is dirty
// and how many records have pending edits. It runs with the buffer locked
// and must not call back into the Buffer.
type ChangeFunc func(dirty bool, records int)

// Buffer maps path -> field -> pending value. Last write wins.
type Buffer struct {
	mu      sync.Mutex
	pending map[string]map[models.Field]models.Value

	retainFailed bool
	onChange     ChangeFunc
	logger       *slog.Logger
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithRetainFailed keeps changes whose write failed so a later flush can
// retry them. By default a flush empties the buffer regardless of outcome.
func WithRetainFailed(retain bool) Option {
	return func(b *Buffer) {
		b.retainFailed = retain
	}
}

// WithOnChange registers a dirty-state observer.
func WithOnChange(fn ChangeFunc) Option {
	return func(b *Buffer) {
		b.onChange = fn
	}
}

// WithLogger sets the logger used to report failed writes.
func WithLogger(l *slog.Logger) Option {
	return func(b *Buffer) {
		b.logger = l
	}
}

// New creates an empty Buffer.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		pending: make(map[string]map[models.Field]models.Value),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Stage records a pending value, replacing any earlier one for the same
// path and field.
func (b *Buffer) Stage(path string, field models.Field, value models.Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.pending)
	b.stageLocked(path, field, value)
	b.notifyLocked(before)
}

// StageUsed stages the used flag together with its usedDate: today's date
// when marking used, Absent when clearing it.
func (b *Buffer) StageUsed(path string, used bool, now time.Time) {
	date := models.Absent()
	if used {
		date = models.Text(models.FormatDate(now))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.pending)
	b.stageLocked(path, models.FieldUsed, models.Flag(used))
	b.stageLocked(path, models.FieldUsedDate, date)
	b.notifyLocked(before)
}

// Pending returns the staged value for path and field, if any.
func (b *Buffer) Pending(path string, field models.Field) (models.Value, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.pending[path][field]
	return v, ok
}

// IsDirty reports whether any change is pending.
func (b *Buffer) IsDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) > 0
}

// Len returns the number of records with pending changes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Snapshot returns the pending changes ordered by path, then field.
func (b *Buffer) Snapshot() []Change {
	b.mu.Lock()
	defer b.mu.Unlock()
	return flatten(b.pending)
}

// Drop discards the pending changes of the given paths.
func (b *Buffer) Drop(paths ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.pending)
	for _, p := range paths {
		delete(b.pending, p)
	}
	b.notifyLocked(before)
}

// Clear discards every pending change without writing it.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	before := len(b.pending)
	b.pending = make(map[string]map[models.Field]models.Value)
	b.notifyLocked(before)
}

// Flush writes every pending change through store. Individual failures do
// not stop the batch and nothing is rolled back. The buffer is drained
// before writing; with WithRetainFailed, failed changes are staged again
// unless a newer value arrived while the flush was running.
func (b *Buffer) Flush(ctx context.Context, store Updater) FlushResult {
	b.mu.Lock()
	drained := b.pending
	before := len(drained)
	b.pending = make(map[string]map[models.Field]models.Value)
	b.notifyLocked(before)
	b.mu.Unlock()

	changes := flatten(drained)
	res := FlushResult{Attempted: len(changes)}
	for _, c := range changes {
		if err := store.UpdateField(ctx, c.Path, c.Field, c.Value); err != nil {
			b.logger.Warn("flush: update failed",
				slog.String("path", c.Path),
				slog.String("field", string(c.Field)),
				slog.String("error", err.Error()))
			res.Failures = append(res.Failures, Failure{Change: c, Err: fmt.Errorf("dirty: flush %s.%s: %w", c.Path, c.Field, err)})
			continue
		}
		res.Succeeded++
	}

	if b.retainFailed && len(res.Failures) > 0 {
		b.mu.Lock()
		before := len(b.pending)
		for _, f := range res.Failures {
			if _, newer := b.pending[f.Path][f.Field]; newer {
				continue
			}
			b.stageLocked(f.Path, f.Field, f.Value)
		}
		b.notifyLocked(before)
		b.mu.Unlock()
	}

	return res
}

func (b *Buffer) stageLocked(path string, field models.Field, value models.Value) {
	fields, ok := b.pending[path]
	if !ok {
		fields = make(map[models.Field]models.Value, 2)
		b.pending[path] = fields
	}
	fields[field] = value
}

func (b *Buffer) notifyLocked(before int) {
	if b.onChange == nil || before == len(b.pending) {
		return
	}
	b.onChange(len(b.pending) > 0, len(b.pending))
}

func flatten(m map[string]map[models.Field]models.Value) []Change {
	out := make([]Change, 0, len(m))
	for path, fields := range m {
		for field, v := range fields {
			out = append(out, Change{Path: path, Field: field, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Field < out[j].Field
	})
	return out
}
