// Package query validates filter specifications and runs them against the
// record store.
package query

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/predicate"
)

// Fetcher is the read side of the record store used by the engine.
type Fetcher interface {
	FetchFiltered(ctx context.Context, p predicate.Predicate, order models.Order, limit int) ([]models.Record, error)
}

// Engine runs filter specifications. It never mutates the store.
type Engine struct {
	store Fetcher
}

// NewEngine creates an Engine over store.
func NewEngine(store Fetcher) *Engine {
	return &Engine{store: store}
}

// Run validates spec, compiles it and returns the matching records.
// Invalid specs fail with apperr.ErrInvalidFilterSpec before the store is
// touched.
func (e *Engine) Run(ctx context.Context, spec models.FilterSpec) ([]models.Record, error) {
	spec = Normalize(spec)
	if err := Validate(spec); err != nil {
		return nil, err
	}
	p := predicate.Build(spec)
	order := models.Order{Column: spec.OrderBy, Direction: spec.Direction}
	recs, err := e.store.FetchFiltered(ctx, p, order, spec.Limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return recs, nil
}

// Normalize fills empty enum fields with their defaults.
func Normalize(spec models.FilterSpec) models.FilterSpec {
	if spec.Used == "" {
		spec.Used = models.UsedAny
	}
	if spec.Date.Mode == "" {
		spec.Date.Mode = models.DateNone
	}
	if spec.Combinator == "" {
		spec.Combinator = models.And
	}
	if spec.OrderBy == "" {
		spec.OrderBy = models.ColumnPath
	}
	if spec.Direction == "" {
		spec.Direction = models.Asc
	}
	return spec
}

// Validate checks a normalized spec.
func Validate(spec models.FilterSpec) error {
	columns := make([]any, 0, len(models.Columns()))
	for _, c := range models.Columns() {
		columns = append(columns, c)
	}

	err := validation.ValidateStruct(&spec,
		validation.Field(&spec.Limit, validation.Required, validation.Min(1)),
		validation.Field(&spec.Used, validation.In(models.UsedAny, models.UsedTrue, models.UsedFalse)),
		validation.Field(&spec.Combinator, validation.In(models.And, models.Or)),
		validation.Field(&spec.OrderBy, validation.In(columns...)),
		validation.Field(&spec.Direction, validation.In(models.Asc, models.Desc)),
		validation.Field(&spec.Date, validation.By(validateDate)),
	)
	if err != nil {
		return fmt.Errorf("query: %w: %w", apperr.ErrInvalidFilterSpec, err)
	}
	return nil
}

func validateDate(value any) error {
	d, _ := value.(models.DateFilter)
	return validation.ValidateStruct(&d,
		validation.Field(&d.Mode, validation.In(models.DateNone, models.DateBefore, models.DateAfter, models.DateBetween)),
		validation.Field(&d.From, validation.Date(models.DateLayout)),
		validation.Field(&d.To, validation.Date(models.DateLayout)),
	)
}
