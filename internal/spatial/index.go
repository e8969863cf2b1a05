package spatial

import (
	"math"

	"github.com/rotisserie/eris"
)

const (
	// KMPerDegree converts euclidean degree-space distances to kilometers.
	// The degree metric over-estimates east-west distance at Singapore's
	// latitude, so radius counts err toward inclusion.
	KMPerDegree = 111.1

	// DefaultMallRadiusKM is the radius used for the mall proximity count.
	DefaultMallRadiusKM = 5.0
)

// TownCenter is the fixed reference point for the distance-to-town feature.
var TownCenter = Point{Lat: 1.300556, Lon: 103.821667}

// Amenity is a named coordinate: an MRT station or a shopping mall.
// Duplicate station names are intentional — interchange stations appear once
// per line and each entry is a distinct index point.
type Amenity struct {
	Name string  `json:"name"`
	Lat  float64 `json:"latitude"`
	Lon  float64 `json:"longitude"`
}

// Index wraps the MRT and mall trees. Built once at startup and read-only
// afterwards; refreshing amenities means building a new Index.
type Index struct {
	mrt   *KDTree
	malls *KDTree
}

// NewIndex builds the spatial index over both amenity sets. Empty sets are
// rejected at construction so queries never have to handle them.
func NewIndex(mrt, malls []Amenity) (*Index, error) {
	if len(mrt) == 0 {
		return nil, eris.New("spatial: empty MRT amenity set")
	}
	if len(malls) == 0 {
		return nil, eris.New("spatial: empty mall amenity set")
	}
	return &Index{
		mrt:   NewKDTree(points(mrt)),
		malls: NewKDTree(points(malls)),
	}, nil
}

func points(amenities []Amenity) []Point {
	pts := make([]Point, len(amenities))
	for i, a := range amenities {
		pts[i] = Point{Lat: a.Lat, Lon: a.Lon}
	}
	return pts
}

// NearestMRT returns the distance in kilometers to the closest MRT station.
func (ix *Index) NearestMRT(p Point) float64 {
	return ix.mrt.Nearest(p) * KMPerDegree
}

// NearestMall returns the distance in kilometers to the closest mall.
func (ix *Index) NearestMall(p Point) float64 {
	return ix.malls.Nearest(p) * KMPerDegree
}

// MRTWithin counts MRT stations within radiusKM of p.
func (ix *Index) MRTWithin(p Point, radiusKM float64) int {
	return ix.mrt.CountWithin(p, radiusKM/KMPerDegree)
}

// MallsWithin counts malls within radiusKM of p.
func (ix *Index) MallsWithin(p Point, radiusKM float64) int {
	return ix.malls.CountWithin(p, radiusKM/KMPerDegree)
}

// DistanceToTown returns the straight-line distance in kilometers from p to
// the fixed town center.
func (ix *Index) DistanceToTown(p Point) float64 {
	dLat := p.Lat - TownCenter.Lat
	dLon := p.Lon - TownCenter.Lon
	return math.Sqrt(dLat*dLat+dLon*dLon) * KMPerDegree
}
