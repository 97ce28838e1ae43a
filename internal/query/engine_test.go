package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/predicate"
)

type fakeStore struct {
	calls int
	pred  predicate.Predicate
	order models.Order
	limit int
	out   []models.Record
}

func (f *fakeStore) FetchFiltered(_ context.Context, p predicate.Predicate, order models.Order, limit int) ([]models.Record, error) {
	f.calls++
	f.pred, f.order, f.limit = p, order, limit
	return f.out, nil
}

func TestRun_Defaults(t *testing.T) {
	store := &fakeStore{out: []models.Record{{Path: "a.jpg"}}}
	e := NewEngine(store)

	recs, err := e.Run(context.Background(), models.FilterSpec{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, models.Order{Column: models.ColumnPath, Direction: models.Asc}, store.order)
	assert.Equal(t, 10, store.limit)
	assert.True(t, store.pred.Empty())
}

func TestRun_PassesPredicate(t *testing.T) {
	store := &fakeStore{}
	e := NewEngine(store)

	_, err := e.Run(context.Background(), models.FilterSpec{
		PathContains: "beach",
		Used:         models.UsedTrue,
		Combinator:   models.Or,
		Limit:        5,
		OrderBy:      models.ColumnUsedDate,
		Direction:    models.Desc,
	})
	require.NoError(t, err)
	assert.Len(t, store.pred.Clauses, 2)
	assert.Equal(t, models.Or, store.pred.Combinator)
	assert.Equal(t, models.Order{Column: models.ColumnUsedDate, Direction: models.Desc}, store.order)
}

func TestRun_InvalidSpecNeverTouchesStore(t *testing.T) {
	tests := []struct {
		name string
		spec models.FilterSpec
	}{
		{"zero limit", models.FilterSpec{Limit: 0}},
		{"negative limit", models.FilterSpec{Limit: -3}},
		{"bad date", models.FilterSpec{Limit: 1, Date: models.DateFilter{Mode: models.DateAfter, From: "2024-01-01"}}},
		{"bad to date", models.FilterSpec{Limit: 1, Date: models.DateFilter{Mode: models.DateBetween, To: "31.12.2024"}}},
		{"bad mode", models.FilterSpec{Limit: 1, Date: models.DateFilter{Mode: "around"}}},
		{"bad order column", models.FilterSpec{Limit: 1, OrderBy: "rowid"}},
		{"bad direction", models.FilterSpec{Limit: 1, Direction: "SIDEWAYS"}},
		{"bad combinator", models.FilterSpec{Limit: 1, Combinator: "XOR"}},
		{"bad used", models.FilterSpec{Limit: 1, Used: "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			_, err := NewEngine(store).Run(context.Background(), tt.spec)
			require.ErrorIs(t, err, apperr.ErrInvalidFilterSpec)
			assert.Zero(t, store.calls)
		})
	}
}
