// Package store persists the historical transaction dataset and the amenity
// coordinate sets behind a driver-selectable interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/spatial"
)

// Amenity table kinds.
const (
	AmenityMRT  = "mrt"
	AmenityMall = "mall"
)

// Store is the persistence interface for the pipeline. The transaction
// table is append-only: rows are never edited or pruned, and the row count
// doubles as the offset cursor into the upstream source.
type Store interface {
	// Transactions
	CountRecords(ctx context.Context, kind dataset.Kind) (int, error)
	LoadRecords(ctx context.Context, kind dataset.Kind) ([]dataset.Record, error)
	RecentRecords(ctx context.Context, kind dataset.Kind, n int) ([]dataset.Record, error)
	AppendRecords(ctx context.Context, records []dataset.Record) error

	// Amenities
	LoadAmenities(ctx context.Context, kind string) ([]spatial.Amenity, error)
	CountAmenities(ctx context.Context, kind string) (int, error)
	ReplaceAmenities(ctx context.Context, kind string, amenities []spatial.Amenity) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens a store for the configured driver.
func New(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
