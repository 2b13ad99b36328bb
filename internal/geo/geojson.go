package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/example/route-matching/internal/models"
)

// RouteFromGeoJSON converts a GeoJSON LineString into a validated route.
func RouteFromGeoJSON(g *geojson.Geometry) (models.RouteGeometry, error) {
	if g == nil || g.Coordinates == nil {
		return nil, &models.ValidationError{Field: "route", Reason: "geometry is required"}
	}
	ls, ok := g.Geometry().(orb.LineString)
	if !ok {
		return nil, &models.ValidationError{Field: "route", Reason: fmt.Sprintf("expected LineString, got %s", g.Geometry().GeoJSONType())}
	}
	route := RouteFromLineString(ls)
	if err := route.Validate("route"); err != nil {
		return nil, err
	}
	return route, nil
}

// RouteFromLineString copies orb's [lng, lat] points into a route.
func RouteFromLineString(ls orb.LineString) models.RouteGeometry {
	route := make(models.RouteGeometry, len(ls))
	for i, pt := range ls {
		route[i] = models.GeoPoint{Lng: pt.Lon(), Lat: pt.Lat()}
	}
	return route
}

// LineString is the inverse of RouteFromLineString.
func LineString(route models.RouteGeometry) orb.LineString {
	ls := make(orb.LineString, len(route))
	for i, p := range route {
		ls[i] = orb.Point{p.Lng, p.Lat}
	}
	return ls
}

// RouteFromPolyline decodes a Google encoded polyline (precision 5).
func RouteFromPolyline(encoded string) (models.RouteGeometry, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, &models.ValidationError{Field: "polyline", Reason: err.Error()}
	}
	if len(rest) != 0 {
		return nil, &models.ValidationError{Field: "polyline", Reason: "trailing bytes after polyline"}
	}
	route := make(models.RouteGeometry, len(coords))
	for i, c := range coords {
		route[i] = models.GeoPoint{Lat: c[0], Lng: c[1]}
	}
	if err := route.Validate("polyline"); err != nil {
		return nil, err
	}
	return route, nil
}

// EncodePolyline is the inverse of RouteFromPolyline.
func EncodePolyline(route models.RouteGeometry) string {
	coords := make([][]float64, len(route))
	for i, p := range route {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}
