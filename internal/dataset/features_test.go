package dataset

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdb-research/resale-cli/internal/spatial"
)

func testIndex(t *testing.T) *spatial.Index {
	t.Helper()
	ix, err := spatial.NewIndex(
		[]spatial.Amenity{{Name: "Somerset", Lat: 1.30, Lon: 103.80}},
		[]spatial.Amenity{
			{Name: "313", Lat: 1.30, Lon: 103.80},
			{Name: "Far Mall", Lat: 1.45, Lon: 103.95},
		},
	)
	require.NoError(t, err)
	return ix
}

func featureRecord(address string, lat, lon float64) Record {
	return Record{
		Address:        address,
		Latitude:       lat,
		Longitude:      lon,
		Year:           2021,
		Month:          4,
		StoreyRange:    8,
		FloorArea:      95,
		FlatType:       "4 ROOM",
		LeaseCommence:  1990,
		RemainingLease: 67.75,
		Price:          512000,
		Kind:           KindResale,
	}
}

func TestBuild_ElevenColumnsFixedOrder(t *testing.T) {
	b := NewFeatureBuilder(testIndex(t))

	m, err := b.Build([]Record{featureRecord("A", 1.30, 103.81)})
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())
	require.Len(t, m.Columns, 11)
	assert.Equal(t, []string{
		"storey_range", "floor_area_sqm", "flat_cat", "remaining_lease_year",
		"resale_price", "mrt", "malls", "year", "dist_mrt", "dist_malls",
		"distance_to_town",
	}, m.Columns)

	row := m.Rows[0]
	require.Len(t, row, 11)
	assert.InDelta(t, 8, row[0], 1e-9)       // storey_range
	assert.InDelta(t, 95, row[1], 1e-9)      // floor_area_sqm
	assert.InDelta(t, 4, row[2], 1e-9)       // flat_cat
	assert.InDelta(t, 67.75, row[3], 1e-9)   // remaining_lease_year
	assert.InDelta(t, 512000, row[4], 1e-9)  // resale_price
	assert.InDelta(t, 1, row[5], 1e-9)       // mrt count within 5km
	assert.InDelta(t, 1, row[6], 1e-9)       // mall count within 5km
	assert.InDelta(t, 2021, row[7], 1e-9)    // year
	assert.InDelta(t, 1.111, row[8], 0.001)  // dist_mrt
	assert.InDelta(t, 1.111, row[9], 0.001)  // dist_malls
}

func TestBuild_JoinRetainsEveryRow(t *testing.T) {
	b := NewFeatureBuilder(testIndex(t))

	// Three rows, two distinct address triples.
	records := []Record{
		featureRecord("A", 1.30, 103.81),
		featureRecord("A", 1.30, 103.81),
		featureRecord("B", 1.31, 103.82),
	}

	m, err := b.Build(records)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Len())
	// Duplicate triples share identical derived features.
	assert.Equal(t, m.Rows[0][8], m.Rows[1][8])
}

func TestBuild_UnknownFlatTypeIsNaNCategory(t *testing.T) {
	b := NewFeatureBuilder(testIndex(t))

	r := featureRecord("A", 1.30, 103.81)
	r.FlatType = "PENTHOUSE"

	m, err := b.Build([]Record{r})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m.Rows[0][2]))
}

func TestBuild_MissingCoordsGiveNaNGeoFeatures(t *testing.T) {
	b := NewFeatureBuilder(testIndex(t))

	r := featureRecord("A", math.NaN(), math.NaN())
	m, err := b.Build([]Record{r})
	require.NoError(t, err)

	row := m.Rows[0]
	assert.True(t, math.IsNaN(row[8]))
	assert.True(t, math.IsNaN(row[9]))
	assert.True(t, math.IsNaN(row[10]))
	// Non-geospatial columns survive untouched.
	assert.InDelta(t, 512000, row[4], 1e-9)
}

func TestMatrixSplit(t *testing.T) {
	b := NewFeatureBuilder(testIndex(t))
	m, err := b.Build([]Record{featureRecord("A", 1.30, 103.81)})
	require.NoError(t, err)

	features, labels := m.Split()
	require.Len(t, features, 1)
	require.Len(t, features[0], 10)
	require.Len(t, labels, 1)
	assert.InDelta(t, 512000, labels[0], 1e-9)
	// Label column excised, neighbors preserved.
	assert.InDelta(t, 67.75, features[0][3], 1e-9)
	assert.InDelta(t, 1, features[0][4], 1e-9) // mrt count shifts left
}

func TestVector_MatchesSplitOrder(t *testing.T) {
	b := NewFeatureBuilder(testIndex(t))
	rec := featureRecord("A", 1.30, 103.81)

	m, err := b.Build([]Record{rec})
	require.NoError(t, err)
	features, _ := m.Split()

	vec, err := b.Vector(rec)
	require.NoError(t, err)
	assert.Equal(t, features[0], vec)
}

func TestVector_RequiresCoords(t *testing.T) {
	b := NewFeatureBuilder(testIndex(t))
	_, err := b.Vector(featureRecord("A", math.NaN(), math.NaN()))
	require.Error(t, err)
}
