package amenity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdb-research/resale-cli/internal/spatial"
	"github.com/hdb-research/resale-cli/internal/store"
)

func writeSeed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSeedCSV(t *testing.T) {
	path := writeSeed(t, "mrt.csv", `mrt,latitude,longitude
JURONG EAST MRT STATION,1.3331,103.7422
CLEMENTI MRT STATION,1.3152,103.7652
`)

	amenities, err := LoadSeedCSV(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, amenities, 2)
	assert.Equal(t, "JURONG EAST MRT STATION", amenities[0].Name)
	assert.InDelta(t, 1.3331, amenities[0].Lat, 1e-9)
	assert.InDelta(t, 103.7652, amenities[1].Lon, 1e-9)
}

func TestLoadSeedCSV_BadCoordinate(t *testing.T) {
	path := writeSeed(t, "mrt.csv", `mrt,latitude,longitude
BROKEN STATION,not-a-number,103.74
`)

	_, err := LoadSeedCSV(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")
}

func TestLoadSeedCSV_HeaderOnly(t *testing.T) {
	path := writeSeed(t, "mrt.csv", "mrt,latitude,longitude\n")

	_, err := LoadSeedCSV(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestSeedAll_PopulatesEmptyStoreOnly(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	mrtPath := writeSeed(t, "mrt.csv", `mrt,latitude,longitude
JURONG EAST MRT STATION,1.3331,103.7422
`)
	mallPath := writeSeed(t, "malls.csv", `mall,latitude,longitude
313 SOMERSET,1.3009,103.8384
JEM,1.3331,103.7430
`)

	require.NoError(t, SeedAll(context.Background(), st, mrtPath, mallPath))

	n, err := st.CountAmenities(context.Background(), store.AmenityMRT)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = st.CountAmenities(context.Background(), store.AmenityMall)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second pass with a different file does not overwrite.
	otherPath := writeSeed(t, "other.csv", `mall,latitude,longitude
NEX,1.3509,103.8718
`)
	require.NoError(t, Seed(context.Background(), st, store.AmenityMall, otherPath))
	n, err = st.CountAmenities(context.Background(), store.AmenityMall)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoadIndex(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.ReplaceAmenities(ctx, store.AmenityMRT,
		[]spatial.Amenity{{Name: "JURONG EAST MRT STATION", Lat: 1.3331, Lon: 103.7422}}))
	require.NoError(t, st.ReplaceAmenities(ctx, store.AmenityMall,
		[]spatial.Amenity{{Name: "JEM", Lat: 1.3331, Lon: 103.7430}}))

	ix, err := LoadIndex(ctx, st)
	require.NoError(t, err)
	require.NotNil(t, ix)
}

func TestLoadIndex_EmptyStoreFails(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	_, err = LoadIndex(context.Background(), st)
	require.Error(t, err)
}
