package dataset

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/hdb-research/resale-cli/internal/spatial"
)

// FeatureColumns is the fixed column order of the feature matrix. The price
// column doubles as the training label.
var FeatureColumns = []string{
	"storey_range",
	"floor_area_sqm",
	"flat_cat",
	"remaining_lease_year",
	"resale_price",
	"mrt",
	"malls",
	"year",
	"dist_mrt",
	"dist_malls",
	"distance_to_town",
}

// LabelColumn is the index of the price label within FeatureColumns.
const LabelColumn = 4

// flatCategories is the closed flat-type vocabulary. Anything outside it
// maps to NaN — a data-quality signal, not a crash.
var flatCategories = map[string]float64{
	"1 ROOM":           1,
	"2 ROOM":           2,
	"3 ROOM":           3,
	"4 ROOM":           4,
	"5 ROOM":           5,
	"EXECUTIVE":        6,
	"MULTI-GENERATION": 7,
}

// FlatCategory maps a flat-type string to its numeric category.
func FlatCategory(flatType string) float64 {
	if cat, ok := flatCategories[flatType]; ok {
		return cat
	}
	return math.NaN()
}

// Matrix is the numeric feature matrix: a derived, disposable projection of
// the dataset, never persisted back into it.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	return len(m.Rows)
}

// Split separates the matrix into feature vectors and the price label.
func (m *Matrix) Split() (features [][]float64, labels []float64) {
	features = make([][]float64, len(m.Rows))
	labels = make([]float64, len(m.Rows))
	for i, row := range m.Rows {
		x := make([]float64, 0, len(row)-1)
		x = append(x, row[:LabelColumn]...)
		x = append(x, row[LabelColumn+1:]...)
		features[i] = x
		labels[i] = row[LabelColumn]
	}
	return features, labels
}

// FeatureBuilder derives the geospatial feature matrix from a dataset using
// the read-only amenity index.
type FeatureBuilder struct {
	index        *spatial.Index
	mallRadiusKM float64
}

// NewFeatureBuilder creates a builder with the default proximity radius.
func NewFeatureBuilder(ix *spatial.Index) *FeatureBuilder {
	return &FeatureBuilder{index: ix, mallRadiusKM: spatial.DefaultMallRadiusKM}
}

type geoFeatures struct {
	mrtCount  int
	mallCount int
	distMRT   float64
	distMall  float64
	distTown  float64
}

type tripleKey struct {
	address  string
	lat, lon float64
}

// Build produces the fixed 11-column matrix for every row of the dataset.
// Geospatial features are computed once per distinct (address, lat, lon)
// triple and joined back onto the full dataset. Rows without coordinates get
// NaN geospatial features.
func (b *FeatureBuilder) Build(records []Record) (*Matrix, error) {
	if len(FeatureColumns) != 11 {
		return nil, eris.Errorf("features: expected 11 columns, have %d", len(FeatureColumns))
	}

	derived := make(map[tripleKey]geoFeatures)
	for _, r := range records {
		if !r.HasCoords() {
			continue
		}
		k := tripleKey{address: r.Address, lat: r.Latitude, lon: r.Longitude}
		if _, ok := derived[k]; ok {
			continue
		}
		derived[k] = b.derive(r.Point())
	}

	rows := make([][]float64, 0, len(records))
	for _, r := range records {
		gf := geoFeatures{
			distMRT:  math.NaN(),
			distMall: math.NaN(),
			distTown: math.NaN(),
		}
		if r.HasCoords() {
			var ok bool
			gf, ok = derived[tripleKey{address: r.Address, lat: r.Latitude, lon: r.Longitude}]
			if !ok {
				// Every coordinate row was derived above; a miss means the
				// join key set diverged from the dataset.
				return nil, eris.Errorf("features: no derived features for %q", r.Address)
			}
		}

		row := []float64{
			r.StoreyRange,
			r.FloorArea,
			FlatCategory(r.FlatType),
			r.RemainingLease,
			r.Price,
			float64(gf.mrtCount),
			float64(gf.mallCount),
			float64(r.Year),
			gf.distMRT,
			gf.distMall,
			gf.distTown,
		}
		if len(row) != len(FeatureColumns) {
			return nil, eris.Errorf("features: row has %d columns, want %d", len(row), len(FeatureColumns))
		}
		rows = append(rows, row)
	}

	return &Matrix{Columns: FeatureColumns, Rows: rows}, nil
}

// Vector derives the 10-element feature vector (matrix order minus the
// label) for a single record with resolved coordinates.
func (b *FeatureBuilder) Vector(r Record) ([]float64, error) {
	if !r.HasCoords() {
		return nil, eris.Errorf("features: record %q has no coordinates", r.Address)
	}
	gf := b.derive(r.Point())
	return []float64{
		r.StoreyRange,
		r.FloorArea,
		FlatCategory(r.FlatType),
		r.RemainingLease,
		float64(gf.mrtCount),
		float64(gf.mallCount),
		float64(r.Year),
		gf.distMRT,
		gf.distMall,
		gf.distTown,
	}, nil
}

func (b *FeatureBuilder) derive(p spatial.Point) geoFeatures {
	return geoFeatures{
		mrtCount:  b.index.MRTWithin(p, b.mallRadiusKM),
		mallCount: b.index.MallsWithin(p, b.mallRadiusKM),
		distMRT:   b.index.NearestMRT(p),
		distMall:  b.index.NearestMall(p),
		distTown:  b.index.DistanceToTown(p),
	}
}
