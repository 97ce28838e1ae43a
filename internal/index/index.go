package index

import (
	"context"

	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/predicate"
)

// RecordStore defines the catalog persistence operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type RecordStore interface {
	InsertIfAbsent(ctx context.Context, path string) (bool, error)
	FetchAll(ctx context.Context) ([]models.Record, error)
	FetchFiltered(ctx context.Context, p predicate.Predicate, order models.Order, limit int) ([]models.Record, error)
	Get(ctx context.Context, path string) (*models.Record, error)
	UpdateField(ctx context.Context, path string, field models.Field, value models.Value) error
	DeleteMany(ctx context.Context, paths []string) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Verify *DB satisfies RecordStore at compile time.
var _ RecordStore = (*DB)(nil)
