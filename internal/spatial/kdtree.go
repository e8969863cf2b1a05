// Package spatial provides nearest-neighbor search over amenity coordinates
// and the proximity features derived from it.
package spatial

import (
	"math"
	"sort"
)

// Point is a coordinate pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

type kdNode struct {
	pt    Point
	axis  int
	left  *kdNode
	right *kdNode
}

// KDTree is a static 2-d tree over coordinate points. It is built once and
// never mutated; all queries are pure reads and safe for concurrent use.
type KDTree struct {
	root *kdNode
	size int
}

// NewKDTree builds a balanced tree from the given points. The input slice is
// copied, so the caller may reuse it.
func NewKDTree(points []Point) *KDTree {
	pts := make([]Point, len(points))
	copy(pts, points)
	return &KDTree{root: buildNode(pts, 0), size: len(pts)}
}

func buildNode(pts []Point, depth int) *kdNode {
	if len(pts) == 0 {
		return nil
	}
	axis := depth % 2
	sort.Slice(pts, func(i, j int) bool {
		return coord(pts[i], axis) < coord(pts[j], axis)
	})
	mid := len(pts) / 2
	return &kdNode{
		pt:    pts[mid],
		axis:  axis,
		left:  buildNode(pts[:mid], depth+1),
		right: buildNode(pts[mid+1:], depth+1),
	}
}

func coord(p Point, axis int) float64 {
	if axis == 0 {
		return p.Lat
	}
	return p.Lon
}

func sqDist(a, b Point) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon
	return dLat*dLat + dLon*dLon
}

// Size returns the number of indexed points.
func (t *KDTree) Size() int {
	return t.size
}

// Nearest returns the euclidean distance in degrees from q to the closest
// indexed point. Returns +Inf for an empty tree.
func (t *KDTree) Nearest(q Point) float64 {
	best := math.Inf(1)
	t.root.nearest(q, &best)
	return math.Sqrt(best)
}

func (n *kdNode) nearest(q Point, best *float64) {
	if n == nil {
		return
	}
	if d := sqDist(n.pt, q); d < *best {
		*best = d
	}
	delta := coord(q, n.axis) - coord(n.pt, n.axis)
	near, far := n.left, n.right
	if delta > 0 {
		near, far = n.right, n.left
	}
	near.nearest(q, best)
	// Only cross the splitting plane when the hypersphere around q reaches it.
	if delta*delta < *best {
		far.nearest(q, best)
	}
}

// CountWithin returns how many indexed points lie within r degrees of q,
// boundary inclusive.
func (t *KDTree) CountWithin(q Point, r float64) int {
	if r < 0 {
		return 0
	}
	return t.root.countWithin(q, r*r)
}

func (n *kdNode) countWithin(q Point, rr float64) int {
	if n == nil {
		return 0
	}
	count := 0
	if sqDist(n.pt, q) <= rr {
		count++
	}
	delta := coord(q, n.axis) - coord(n.pt, n.axis)
	near, far := n.left, n.right
	if delta > 0 {
		near, far = n.right, n.left
	}
	count += near.countWithin(q, rr)
	if delta*delta <= rr {
		count += far.countWithin(q, rr)
	}
	return count
}
