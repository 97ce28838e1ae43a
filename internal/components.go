package internal

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/picshelf/internal/annotate"
	"github.com/starford/picshelf/internal/annotate/gemini"
	"github.com/starford/picshelf/internal/catalog"
	"github.com/starford/picshelf/internal/index"
	"github.com/starford/picshelf/internal/metrics"
	"github.com/starford/picshelf/internal/storage"
)

// NewLogger returns the structured JSON logger used by every command.
func NewLogger(level slog.Level, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Components holds the opened catalog and its collaborators.
type Components struct {
	DB      *index.DB
	Service *catalog.Service
	Metrics *metrics.Metrics
}

// Close releases the database.
func (c *Components) Close() error {
	return c.DB.Close()
}

// NewComponents opens the SQLite catalog and builds the catalog service from
// cfg. Extra options are applied after the config-derived ones.
func NewComponents(cfg *Config, logger *slog.Logger, opts ...catalog.Option) (*Components, error) {
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	src := storage.NewFS()
	m := metrics.New()

	base := []catalog.Option{
		catalog.WithLogger(logger),
		catalog.WithMetrics(m),
		catalog.WithFolders(cfg.Catalog.Folders, cfg.Catalog.Extensions),
		catalog.WithDefaultSpec(cfg.Query.Spec()),
		catalog.WithRetainFailedEdits(cfg.Catalog.RetainFailedEdits),
	}

	if cfg.Annotation.Enabled() {
		client, err := newAnnotator(cfg.Annotation, src)
		if err != nil {
			db.Close()
			return nil, err
		}
		base = append(base, catalog.WithAnnotator(client.Annotate,
			annotate.WithDelay(cfg.Annotation.Delay),
			annotate.WithCallTimeout(cfg.Annotation.Timeout),
		))
		logger.Info("Annotation enabled", slog.String("model", client.Model()))
	} else {
		logger.Info("Annotation disabled: no api key configured")
	}

	svc := catalog.NewService(db, src, append(base, opts...)...)
	return &Components{DB: db, Service: svc, Metrics: m}, nil
}

func newAnnotator(cfg AnnotationConfig, src storage.Provider) (*gemini.Client, error) {
	client, err := gemini.New(cfg.APIKey, src,
		gemini.WithBaseURL(cfg.BaseURL),
		gemini.WithModel(cfg.Model),
		gemini.WithPrompt(cfg.Prompt),
		gemini.WithRequestsPerMinute(cfg.RequestsPerMinute),
		gemini.WithRetries(cfg.Retries),
		gemini.WithTimeout(cfg.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("init annotator: %w", err)
	}
	return client, nil
}
