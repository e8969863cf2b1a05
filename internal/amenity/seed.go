package amenity

import (
	"context"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hdb-research/resale-cli/internal/fetcher"
	"github.com/hdb-research/resale-cli/internal/spatial"
	"github.com/hdb-research/resale-cli/internal/store"
)

// LoadSeedCSV reads an amenity seed file with a header row and
// (name, latitude, longitude) columns.
func LoadSeedCSV(ctx context.Context, path string) ([]spatial.Amenity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "amenity: open seed %s", path)
	}
	defer f.Close()

	rowCh, errCh := fetcher.StreamCSV(ctx, f, fetcher.CSVOptions{
		HasHeader: true,
		TrimSpace: true,
	})

	var amenities []spatial.Amenity
	for row := range rowCh {
		if len(row) < 3 {
			return nil, eris.Errorf("amenity: seed %s: row has %d columns, want 3", path, len(row))
		}
		lat, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "amenity: seed %s: latitude for %q", path, row[0])
		}
		lon, err := strconv.ParseFloat(row[2], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "amenity: seed %s: longitude for %q", path, row[0])
		}
		amenities = append(amenities, spatial.Amenity{Name: row[0], Lat: lat, Lon: lon})
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "amenity: seed %s", path)
	}
	if len(amenities) == 0 {
		return nil, eris.Errorf("amenity: seed %s is empty", path)
	}
	return amenities, nil
}

// Seed loads one seed file into the store if that amenity kind is empty.
// An already-populated kind is left alone; SyncMRT owns station refreshes.
func Seed(ctx context.Context, st store.Store, kind, path string) error {
	n, err := st.CountAmenities(ctx, kind)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	amenities, err := LoadSeedCSV(ctx, path)
	if err != nil {
		return err
	}
	zap.L().Info("seeding amenities",
		zap.String("kind", kind),
		zap.Int("count", len(amenities)))
	return st.ReplaceAmenities(ctx, kind, amenities)
}

// SeedAll seeds both amenity kinds concurrently.
func SeedAll(ctx context.Context, st store.Store, mrtPath, mallPath string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return Seed(ctx, st, store.AmenityMRT, mrtPath) })
	g.Go(func() error { return Seed(ctx, st, store.AmenityMall, mallPath) })
	return g.Wait()
}

// LoadIndex builds the spatial index from the stored amenity sets.
func LoadIndex(ctx context.Context, st store.Store) (*spatial.Index, error) {
	mrt, err := st.LoadAmenities(ctx, store.AmenityMRT)
	if err != nil {
		return nil, err
	}
	malls, err := st.LoadAmenities(ctx, store.AmenityMall)
	if err != nil {
		return nil, err
	}
	return spatial.NewIndex(mrt, malls)
}
