package dataset

import (
	"github.com/hdb-research/resale-cli/internal/spatial"
)

// CoordCache maps an address to its resolved coordinates. It is built from
// the historical dataset before each merge; once an address is resolved its
// coordinates are treated as stable for the dataset's lifetime.
type CoordCache struct {
	coords map[string]spatial.Point
}

// NewCoordCache builds the cache from existing records, first occurrence per
// address winning. Rows whose coordinates were never resolved are skipped so
// a later batch gets another chance at them.
func NewCoordCache(records []Record) *CoordCache {
	c := &CoordCache{coords: make(map[string]spatial.Point)}
	for _, r := range records {
		if !r.HasCoords() {
			continue
		}
		if _, ok := c.coords[r.Address]; !ok {
			c.coords[r.Address] = r.Point()
		}
	}
	return c
}

// Resolve returns the cached coordinates for an address.
func (c *CoordCache) Resolve(address string) (spatial.Point, bool) {
	p, ok := c.coords[address]
	return p, ok
}

// Put stores coordinates for an address, overwriting any earlier entry.
// Geocoder misses are stored as NaN points so an address is looked up at
// most once per batch.
func (c *CoordCache) Put(address string, p spatial.Point) {
	c.coords[address] = p
}

// Len returns the number of cached addresses.
func (c *CoordCache) Len() int {
	return len(c.coords)
}
