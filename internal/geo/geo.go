package geo

import (
	"math"

	"github.com/example/route-matching/internal/models"
)

// EarthRadiusKm is the mean Earth radius used by every distance in this package.
const EarthRadiusKm = 6371.0

// DefaultMarginDegrees is the bounding-box half-width used to pre-filter candidates.
// 0.9 degrees is roughly 100 km of latitude.
const DefaultMarginDegrees = 0.9

func DegreesToRadians(deg float64) float64 { return deg * math.Pi / 180 }

func RadiansToDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(p1, p2 models.GeoPoint) float64 {
	dLat := DegreesToRadians(p2.Lat - p1.Lat)
	dLng := DegreesToRadians(p2.Lng - p1.Lng)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(DegreesToRadians(p1.Lat))*math.Cos(DegreesToRadians(p2.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// WithinBoundingBox reports whether point lies in the square of half-width marginDegrees
// centred on reference. Bounds are inclusive. This is a degree-space test and is only
// good enough to shrink candidate sets.
func WithinBoundingBox(point, reference models.GeoPoint, marginDegrees float64) bool {
	return point.Lat >= reference.Lat-marginDegrees && point.Lat <= reference.Lat+marginDegrees &&
		point.Lng >= reference.Lng-marginDegrees && point.Lng <= reference.Lng+marginDegrees
}

// NearRoute reports whether both query points are near at least one of the candidate's
// endpoints. Used for route candidates, where the query may sit anywhere along the path.
func NearRoute(from, to, candFrom, candTo models.GeoPoint, marginDegrees float64) bool {
	nearEither := func(p models.GeoPoint) bool {
		return WithinBoundingBox(p, candFrom, marginDegrees) || WithinBoundingBox(p, candTo, marginDegrees)
	}
	return nearEither(from) && nearEither(to)
}

// NearEndpoints reports whether from is near candFrom and to is near candTo.
func NearEndpoints(from, to, candFrom, candTo models.GeoPoint, marginDegrees float64) bool {
	return WithinBoundingBox(from, candFrom, marginDegrees) && WithinBoundingBox(to, candTo, marginDegrees)
}

// Box is a lng/lat rectangle, min corner first.
type Box struct {
	Min, Max [2]float64
}

// BoxAround returns the degree-space box WithinBoundingBox tests against.
func BoxAround(p models.GeoPoint, marginDegrees float64) Box {
	return Box{
		Min: [2]float64{p.Lng - marginDegrees, p.Lat - marginDegrees},
		Max: [2]float64{p.Lng + marginDegrees, p.Lat + marginDegrees},
	}
}

// RoundTenth rounds a non-negative distance to 0.1 km, halves rounding up.
func RoundTenth(km float64) float64 {
	return math.Floor(km*10+0.5) / 10
}

// MarginKm is the radius of a circle that contains the margin box at any latitude.
func MarginKm(marginDegrees float64) float64 {
	return math.Sqrt2 * DegreesToRadians(marginDegrees) * EarthRadiusKm
}
