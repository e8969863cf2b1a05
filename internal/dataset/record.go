// Package dataset holds the canonical transaction schema and the batch
// pipeline that normalizes, geocodes and merges upstream records.
package dataset

import (
	"math"

	"github.com/hdb-research/resale-cli/internal/spatial"
)

// Kind distinguishes the two upstream datasets sharing the schema.
type Kind string

const (
	KindResale Kind = "resale"
	KindRental Kind = "rental"
)

// LeaseTermYears is the lease length assumed for every flat. All HDB flats
// in the source data are sold on 99-year leases; a per-record term is not
// recoverable from the upstream schema.
const LeaseTermYears = 99

// Raw is one record as returned by the upstream datastore API, all values
// carried as strings.
type Raw map[string]string

// Record is one housing transaction in the canonical schema. Latitude and
// Longitude are NaN until the merge resolves them; rental records carry NaN
// in the fields their upstream schema lacks.
type Record struct {
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	StoreyRange    float64 `json:"storey_range"`
	FloorArea      float64 `json:"floor_area_sqm"`
	FlatType       string  `json:"flat_type"`
	LeaseCommence  int     `json:"lease_commence_date"`
	RemainingLease float64 `json:"remaining_lease_year"`
	Price          float64 `json:"price"`
	Kind           Kind    `json:"kind"`
}

// HasCoords reports whether the record has resolved coordinates.
func (r Record) HasCoords() bool {
	return !math.IsNaN(r.Latitude) && !math.IsNaN(r.Longitude)
}

// Point returns the record's coordinates for spatial queries.
func (r Record) Point() spatial.Point {
	return spatial.Point{Lat: r.Latitude, Lon: r.Longitude}
}
