package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/models"
)

func TestGeoLatClampsToIndexableBand(t *testing.T) {
	assert.Equal(t, 45.5, geoLat(45.5))
	assert.Equal(t, redisMaxLat, geoLat(89.9))
	assert.Equal(t, -redisMaxLat, geoLat(-90))
	assert.Equal(t, redisMaxLat, geoLat(redisMaxLat))
}

func TestPolarQueriesScanTheIndex(t *testing.T) {
	m := geo.DefaultMarginDegrees
	assert.False(t, polar(models.GeoPoint{Lat: 60, Lng: 10}, m))
	assert.False(t, polar(models.GeoPoint{Lat: -84, Lng: 10}, m))
	assert.True(t, polar(models.GeoPoint{Lat: 84.5, Lng: 10}, m))
	assert.True(t, polar(models.GeoPoint{Lat: 89, Lng: 10}, m))
	assert.True(t, polar(models.GeoPoint{Lat: -90, Lng: 0}, m))
}
