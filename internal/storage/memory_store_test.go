package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/models"
)

var (
	now      = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	toronto  = models.GeoPoint{Lat: 43.6532, Lng: -79.3832}
	montreal = models.GeoPoint{Lat: 45.5017, Lng: -73.5673}
	ottawa   = models.GeoPoint{Lat: 45.4215, Lng: -75.6972}
)

func trip(id string, from, to models.GeoPoint) models.Trip {
	return models.Trip{ID: id, OwnerID: "u-" + id, From: from, To: to, DepartureAt: now.Add(time.Hour), Status: models.StatusActive}
}

func driverRoute(id string, from, to models.GeoPoint) *models.DriverRoute {
	return &models.DriverRoute{Trip: trip(id, from, to), Route: models.RouteGeometry{from, to}, SeatsAvailable: 3}
}

func query(from, to models.GeoPoint) Query {
	return Query{From: from, To: to, MarginDegrees: geo.DefaultMarginDegrees, Cutoff: now}
}

func TestMemoryStoreDriverRoutesPreFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, driverRoute("tor-mtl", toronto, montreal)))
	require.NoError(t, m.Upsert(ctx, driverRoute("ott-mtl", ottawa, montreal)))

	// pickup in Toronto, dropoff in Montreal: only the Toronto route has an endpoint near both
	got, err := m.DriverRoutes(ctx, query(toronto, montreal))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tor-mtl", got[0].ID)

	// both routes end in Montreal but only one starts near Ottawa
	got, err = m.DriverRoutes(ctx, query(montreal, ottawa))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "ott-mtl", got[0].ID)
}

func TestMemoryStoreFiltersStatusAndCutoff(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	cancelled := driverRoute("cancelled", toronto, montreal)
	cancelled.Status = models.StatusCancelled
	past := driverRoute("past", toronto, montreal)
	past.DepartureAt = now.Add(-time.Minute)
	exact := driverRoute("exact", toronto, montreal)
	exact.DepartureAt = now
	for _, c := range []*models.DriverRoute{cancelled, past, exact} {
		require.NoError(t, m.Upsert(ctx, c))
	}

	got, err := m.DriverRoutes(ctx, query(toronto, montreal))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "exact", got[0].ID)
}

func TestMemoryStoreUpsertReplacesAndRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, driverRoute("r1", toronto, montreal)))
	// moved away from Toronto entirely
	require.NoError(t, m.Upsert(ctx, driverRoute("r1", ottawa, montreal)))
	assert.Equal(t, 1, m.Len(models.KindDriverRoute))

	got, err := m.DriverRoutes(ctx, query(toronto, montreal))
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, m.Remove(ctx, models.KindDriverRoute, "r1"))
	assert.Zero(t, m.Len(models.KindDriverRoute))
	_, err = m.DriverRoute(ctx, "r1")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMemoryStorePassengerRoutesNearRouteEnds(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	near := &models.PassengerRoute{Trip: trip("near", models.GeoPoint{Lat: 43.7, Lng: -79.4}, models.GeoPoint{Lat: 45.5, Lng: -73.6}), SeatsNeeded: 1}
	far := &models.PassengerRoute{Trip: trip("far", models.GeoPoint{Lat: 49.2, Lng: -123.1}, montreal), SeatsNeeded: 1}
	require.NoError(t, m.Upsert(ctx, near))
	require.NoError(t, m.Upsert(ctx, far))

	got, err := m.PassengerRoutes(ctx, query(toronto, montreal))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].ID)
}

func TestMemoryStoreRideWantedIsPairwise(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, &models.RideWanted{Trip: trip("same-way", toronto, montreal)}))
	require.NoError(t, m.Upsert(ctx, &models.RideWanted{Trip: trip("reverse", montreal, toronto)}))

	got, err := m.RideWanted(ctx, query(toronto, montreal))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "same-way", got[0].ID)
}

func TestMemoryStoreDriverRouteByID(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.Upsert(ctx, driverRoute("r1", toronto, montreal)))

	dr, err := m.DriverRoute(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RouteGeometry{toronto, montreal}, dr.Route)

	_, err = m.DriverRoute(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestApplyUpdates(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	upsert := models.CandidateUpdate{
		Op:        models.OpUpsert,
		Kind:      models.KindRideWanted,
		ID:        "w1",
		Candidate: []byte(`{"id":"w1","owner_id":"u1","from":{"lat":43.65,"lng":-79.38},"to":{"lat":45.5,"lng":-73.57},"departure_at":"2026-05-01T09:00:00Z","status":"active"}`),
	}
	require.NoError(t, Apply(ctx, m, upsert))
	assert.Equal(t, 1, m.Len(models.KindRideWanted))

	bad := upsert
	bad.ID = "other"
	assert.True(t, models.IsValidation(Apply(ctx, m, bad)))

	require.NoError(t, Apply(ctx, m, models.CandidateUpdate{Op: models.OpRemove, Kind: models.KindRideWanted, ID: "w1"}))
	assert.Zero(t, m.Len(models.KindRideWanted))

	assert.True(t, models.IsValidation(Apply(ctx, m, models.CandidateUpdate{Op: "merge", Kind: models.KindRideWanted, ID: "w1"})))
}
