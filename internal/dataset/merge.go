package dataset

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hdb-research/resale-cli/internal/spatial"
	"github.com/hdb-research/resale-cli/pkg/onemap"
)

// Merger appends normalized batches onto the historical dataset, resolving
// missing coordinates through the address cache and falling back to the
// geocoder exactly once per unresolved address.
//
// Merging is append-only and order-preserving, and deliberately not
// idempotent: merging the same batch twice yields two copies. The caller's
// offset cursor into the upstream source is the dedup mechanism.
type Merger struct {
	geocoder onemap.Client
}

// NewMerger creates a Merger backed by the given geocoding client.
func NewMerger(gc onemap.Client) *Merger {
	return &Merger{geocoder: gc}
}

// Merge resolves coordinates for the batch and returns old followed by
// batch, in arrival order. Geocoder misses are soft failures: the row keeps
// NaN coordinates and downstream distance features stay undefined. Transport
// errors from the geocoder propagate unchanged.
func (m *Merger) Merge(ctx context.Context, old, batch []Record) ([]Record, error) {
	cache := NewCoordCache(old)

	for i := range batch {
		if batch[i].HasCoords() {
			continue
		}
		addr := batch[i].Address

		if p, ok := cache.Resolve(addr); ok {
			batch[i].Latitude = p.Lat
			batch[i].Longitude = p.Lon
			continue
		}

		res, err := m.geocoder.Geocode(ctx, addr)
		if err != nil {
			return nil, eris.Wrapf(err, "merge: geocode %q", addr)
		}
		if !res.Matched {
			zap.L().Warn("merge: address not geocoded, distance features will be undefined",
				zap.String("address", addr),
			)
			// Cache the miss so repeats within the batch don't re-query.
			cache.Put(addr, spatial.Point{Lat: batch[i].Latitude, Lon: batch[i].Longitude})
			continue
		}

		cache.Put(addr, spatial.Point{Lat: res.Latitude, Lon: res.Longitude})
		batch[i].Latitude = res.Latitude
		batch[i].Longitude = res.Longitude
	}

	merged := make([]Record, 0, len(old)+len(batch))
	merged = append(merged, old...)
	merged = append(merged, batch...)
	return merged, nil
}
