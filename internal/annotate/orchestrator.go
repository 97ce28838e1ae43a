// Package annotate runs AI keyword annotation over a list of images on a
// background goroutine, staging results into the dirty buffer.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/models"
)

// Default pacing and per-call limits.
const (
	DefaultDelay       = 1100 * time.Millisecond
	DefaultCallTimeout = 60 * time.Second
)

// Func produces a keyword string for the image at path.
type Func func(ctx context.Context, path string) (string, error)

// Stager receives annotation results.
type Stager interface {
	Stage(path string, field models.Field, value models.Value)
}

// FileChecker reports whether an image file is present.
type FileChecker interface {
	Exists(path string) bool
}

// EventKind identifies a progress event.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventSkipped   EventKind = "skipped"
	EventAnnotated EventKind = "annotated"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
	EventCompleted EventKind = "completed"
)

// Summary counts the outcome of a run.
type Summary struct {
	Total     int  `json:"total"`
	Annotated int  `json:"annotated"`
	Skipped   int  `json:"skipped"`
	Failed    int  `json:"failed"`
	Cancelled bool `json:"cancelled"`
}

// Event is one progress message. Err is set for skipped and failed items;
// Error carries its text for serialisation.
type Event struct {
	RunID    string    `json:"run_id"`
	Kind     EventKind `json:"kind"`
	Path     string    `json:"path,omitempty"`
	Keywords string    `json:"keywords,omitempty"`
	Error    string    `json:"error,omitempty"`
	Summary  *Summary  `json:"summary,omitempty"`
	Err      error     `json:"-"`
}

// EmitFunc receives progress events. It is called from the run goroutine.
type EmitFunc func(Event)

// ObserveFunc is told how each item ended and how long the call took.
type ObserveFunc func(outcome EventKind, took time.Duration)

// Orchestrator runs at most one annotation pass at a time.
type Orchestrator struct {
	buf      Stager
	files    FileChecker
	annotate Func

	delay       time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
	observe     ObserveFunc

	// mu guards the run state below.
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	runID   string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDelay sets the pause between consecutive external calls.
func WithDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.delay = d
	}
}

// WithCallTimeout bounds each external call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithObserver registers a per-item outcome hook.
func WithObserver(fn ObserveFunc) Option {
	return func(o *Orchestrator) {
		o.observe = fn
	}
}

// New creates an Orchestrator that stages results into buf.
func New(buf Stager, files FileChecker, fn Func, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		buf:         buf,
		files:       files,
		annotate:    fn,
		delay:       DefaultDelay,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run annotates paths in order and blocks until the pass ends. It fails with
// apperr.ErrRunInProgress when another pass is active.
func (o *Orchestrator) Run(ctx context.Context, paths []string, emit EmitFunc) (Summary, error) {
	runCtx, runID, err := o.begin(ctx)
	if err != nil {
		return Summary{}, err
	}
	return o.run(runCtx, runID, paths, emit), nil
}

// Start launches a pass on its own goroutine and returns its run ID.
func (o *Orchestrator) Start(ctx context.Context, paths []string, emit EmitFunc) (string, error) {
	runCtx, runID, err := o.begin(ctx)
	if err != nil {
		return "", err
	}
	go o.run(runCtx, runID, paths, emit)
	return runID, nil
}

// Cancel asks the active pass to stop scheduling further items. The call in
// flight is allowed to finish. It reports whether a pass was running.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel == nil {
		return false
	}
	o.cancel()
	return true
}

// Running returns the active run ID, if any.
func (o *Orchestrator) Running() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID, o.running
}

func (o *Orchestrator) begin(ctx context.Context) (context.Context, string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil, "", fmt.Errorf("annotate: %w", apperr.ErrRunInProgress)
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel
	o.runID = uuid.NewString()
	return runCtx, o.runID, nil
}

func (o *Orchestrator) end() {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.cancel = nil
	o.runID = ""
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, runID string, paths []string, emit EmitFunc) Summary {
	defer o.end()
	if emit == nil {
		emit = func(Event) {}
	}

	sum := Summary{Total: len(paths)}
	logger := o.logger.With(slog.String("run_id", runID))
	logger.Info("annotation: started", slog.Int("total", len(paths)))
	emit(Event{RunID: runID, Kind: EventStarted, Summary: &Summary{Total: len(paths)}})

	for i, path := range paths {
		if ctx.Err() != nil {
			sum.Cancelled = true
			logger.Info("annotation: cancelled", slog.Int("remaining", len(paths)-i))
			emit(Event{RunID: runID, Kind: EventCancelled})
			break
		}

		if !o.files.Exists(path) {
			sum.Skipped++
			err := fmt.Errorf("annotate: file not found %s: %w", path, apperr.ErrAnnotationFailure)
			logger.Warn("annotation: skipped", slog.String("path", path))
			o.observeOutcome(EventSkipped, 0)
			emit(Event{RunID: runID, Kind: EventSkipped, Path: path, Err: err, Error: err.Error()})
			continue
		}

		started := time.Now()
		keywords, err := o.call(ctx, path)
		took := time.Since(started)

		if err != nil {
			sum.Failed++
			logger.Warn("annotation: failed",
				slog.String("path", path),
				slog.Duration("took", took),
				slog.String("error", err.Error()))
			o.observeOutcome(EventFailed, took)
			emit(Event{RunID: runID, Kind: EventFailed, Path: path, Err: err, Error: err.Error()})
		} else {
			sum.Annotated++
			o.buf.Stage(path, models.FieldKeywords, models.Text(keywords))
			logger.Debug("annotation: done", slog.String("path", path), slog.Duration("took", took))
			o.observeOutcome(EventAnnotated, took)
			emit(Event{RunID: runID, Kind: EventAnnotated, Path: path, Keywords: keywords})
		}

		if i < len(paths)-1 && o.delay > 0 {
			t := time.NewTimer(o.delay)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	logger.Info("annotation: finished",
		slog.Int("annotated", sum.Annotated),
		slog.Int("skipped", sum.Skipped),
		slog.Int("failed", sum.Failed),
		slog.Bool("cancelled", sum.Cancelled))
	final := sum
	emit(Event{RunID: runID, Kind: EventCompleted, Summary: &final})
	return sum
}

// call invokes the annotation function with a context that survives run
// cancellation but is bounded by the per-call timeout.
func (o *Orchestrator) call(ctx context.Context, path string) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.callTimeout)
	defer cancel()

	keywords, err := o.annotate(callCtx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrAnnotationFailure) {
			return "", err
		}
		return "", fmt.Errorf("annotate: %s: %w: %w", path, apperr.ErrAnnotationFailure, err)
	}
	keywords = strings.TrimSpace(keywords)
	if keywords == "" {
		return "", fmt.Errorf("annotate: %s: empty response: %w", path, apperr.ErrAnnotationFailure)
	}
	return keywords, nil
}

func (o *Orchestrator) observeOutcome(kind EventKind, took time.Duration) {
	if o.observe != nil {
		o.observe(kind, took)
	}
}
