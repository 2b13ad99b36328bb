package geo

import (
	"github.com/example/route-matching/internal/models"
)

// Projection is where a point lands on a route.
type Projection struct {
	// DistanceKm is the haversine distance from the point to Nearest.
	DistanceKm float64
	// AlongRouteKm is the path length from the first vertex to Nearest.
	AlongRouteKm float64
	Nearest      models.GeoPoint
	Segment      int
	// Degenerate is set for single-vertex routes and for points that landed on a
	// zero-length segment.
	Degenerate bool
}

// ProjectOntoRoute finds the point of route closest to p. Closeness is measured in the
// planar (lng, lat) space, which is adequate for short segments away from the poles;
// the returned distances are haversine kilometres. When two segments are equally close
// the earlier one wins.
func ProjectOntoRoute(route models.RouteGeometry, p models.GeoPoint) (Projection, error) {
	if err := route.Validate("route"); err != nil {
		return Projection{}, err
	}
	if err := p.Validate("point"); err != nil {
		return Projection{}, err
	}
	if len(route) == 1 {
		return Projection{DistanceKm: HaversineKm(route[0], p), Nearest: route[0], Degenerate: true}, nil
	}

	var (
		best      Projection
		bestDist2 = -1.0
		walked    float64
	)
	for i := 0; i+1 < len(route); i++ {
		a, b := route[i], route[i+1]
		nearest, t, zero := closestOnSegment(a, b, p)
		dx, dy := p.Lng-nearest.Lng, p.Lat-nearest.Lat
		d2 := dx*dx + dy*dy
		if bestDist2 < 0 || d2 < bestDist2 {
			bestDist2 = d2
			along := walked
			if t > 0 {
				along += HaversineKm(a, nearest)
			}
			best = Projection{AlongRouteKm: along, Nearest: nearest, Segment: i, Degenerate: zero}
		}
		walked += HaversineKm(a, b)
	}
	best.DistanceKm = HaversineKm(p, best.Nearest)
	return best, nil
}

// closestOnSegment projects p orthogonally onto ab and clamps to the segment. It returns
// the clamped point, the clamped parameter t in [0,1], and whether ab has zero length.
func closestOnSegment(a, b, p models.GeoPoint) (models.GeoPoint, float64, bool) {
	dx, dy := b.Lng-a.Lng, b.Lat-a.Lat
	len2 := dx*dx + dy*dy
	if len2 == 0 {
		return a, 0, true
	}
	t := ((p.Lng-a.Lng)*dx + (p.Lat-a.Lat)*dy) / len2
	switch {
	case t <= 0:
		return a, 0, false
	case t >= 1:
		return b, 1, false
	}
	return models.GeoPoint{Lng: a.Lng + t*dx, Lat: a.Lat + t*dy}, t, false
}

// RouteLengthKm sums the haversine length of every segment.
func RouteLengthKm(route models.RouteGeometry) float64 {
	var total float64
	for i := 0; i+1 < len(route); i++ {
		total += HaversineKm(route[i], route[i+1])
	}
	return total
}
