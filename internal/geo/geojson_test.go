package geo

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/route-matching/internal/models"
)

func TestRouteFromGeoJSONLineString(t *testing.T) {
	var g geojson.Geometry
	require.NoError(t, json.Unmarshal([]byte(`{"type":"LineString","coordinates":[[-79.38,43.65],[-73.57,45.50]]}`), &g))

	route, err := RouteFromGeoJSON(&g)
	require.NoError(t, err)
	require.Len(t, route, 2)
	// longitude first on the wire
	assert.Equal(t, models.GeoPoint{Lat: 43.65, Lng: -79.38}, route[0])
	assert.Equal(t, models.GeoPoint{Lat: 45.50, Lng: -73.57}, route[1])
}

func TestRouteFromGeoJSONRejectsOtherTypes(t *testing.T) {
	var g geojson.Geometry
	require.NoError(t, json.Unmarshal([]byte(`{"type":"Point","coordinates":[0,0]}`), &g))

	_, err := RouteFromGeoJSON(&g)
	assert.True(t, models.IsValidation(err))

	_, err = RouteFromGeoJSON(nil)
	assert.True(t, models.IsValidation(err))
}

func TestRouteFromGeoJSONRejectsOutOfRange(t *testing.T) {
	var g geojson.Geometry
	// Sydney to Melbourne with lat/lng swapped by the client
	require.NoError(t, json.Unmarshal([]byte(`{"type":"LineString","coordinates":[[-33.87,151.21],[-37.81,144.96]]}`), &g))
	_, err := RouteFromGeoJSON(&g)
	assert.True(t, models.IsValidation(err))

	require.NoError(t, json.Unmarshal([]byte(`{"type":"LineString","coordinates":[[0,0],[181,1]]}`), &g))
	_, err = RouteFromGeoJSON(&g)
	assert.True(t, models.IsValidation(err))
}

func TestLineStringRoundTrip(t *testing.T) {
	route := models.RouteGeometry{toronto, montreal}
	assert.Equal(t, route, RouteFromLineString(LineString(route)))
}

func TestRouteFromPolyline(t *testing.T) {
	route, err := RouteFromPolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, route, 3)
	assert.InDelta(t, 38.5, route[0].Lat, 1e-5)
	assert.InDelta(t, -120.2, route[0].Lng, 1e-5)
	assert.InDelta(t, 43.252, route[2].Lat, 1e-5)
	assert.InDelta(t, -126.453, route[2].Lng, 1e-5)

	again, err := RouteFromPolyline(EncodePolyline(route))
	require.NoError(t, err)
	for i := range route {
		assert.InDelta(t, route[i].Lat, again[i].Lat, 1e-5)
		assert.InDelta(t, route[i].Lng, again[i].Lng, 1e-5)
	}
}

func TestRouteFromPolylineRejectsGarbage(t *testing.T) {
	_, err := RouteFromPolyline("")
	assert.True(t, models.IsValidation(err))
}
