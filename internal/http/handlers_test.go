package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/matcher"
	"github.com/example/route-matching/internal/models"
	"github.com/example/route-matching/internal/storage"
)

var now = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func pt(lng, lat float64) models.GeoPoint { return models.GeoPoint{Lat: lat, Lng: lng} }

func trip(id string, from, to models.GeoPoint) models.Trip {
	return models.Trip{ID: id, OwnerID: "u-" + id, From: from, To: to, DepartureAt: now.Add(2 * time.Hour), Status: models.StatusActive}
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestServer(t *testing.T, store matcher.Candidates, opts Options) *Server {
	t.Helper()
	svc := matcher.NewService(store, matcher.DefaultLimits(), discardLogger())
	svc.Now = func() time.Time { return now }
	return NewServer(svc, opts, discardLogger())
}

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemoryStore()
	route := models.RouteGeometry{pt(0, 0), pt(0, 1)}
	require.NoError(t, st.Upsert(ctx, &models.DriverRoute{Trip: trip("r1", route[0], route[1]), Route: route, SeatsAvailable: 2}))
	require.NoError(t, st.Upsert(ctx, &models.PassengerRoute{Trip: trip("p1", pt(0, 0.2), pt(0, 0.4)), SeatsNeeded: 1}))
	require.NoError(t, st.Upsert(ctx, &models.RideWanted{Trip: trip("w1", pt(0, geo.RadiansToDegrees(12.34/geo.EarthRadiusKm)), pt(1, 0)), SeatsNeeded: 1}))
	return st
}

type response struct {
	Data  []map[string]any `json:"data"`
	Count int              `json:"count"`
	Error string           `json:"error"`
}

func do(t *testing.T, s http.Handler, method, path, body string) (*httptest.ResponseRecorder, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var resp response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestDriverSearch(t *testing.T) {
	s := newTestServer(t, seededStore(t), Options{})

	rec, resp := do(t, s, http.MethodPost, "/api/v1/drivers/search",
		`{"pickup":{"lat":0.3,"lng":0.01},"dropoff":{"lat":0.7,"lng":0.01},"radius_km":5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, resp.Count)
	m := resp.Data[0]
	assert.Equal(t, "r1", m["id"])
	assert.Equal(t, "u-r1", m["owner_id"])
	assert.InDelta(t, 33, m["pickup_along_route_km"], 1)
	assert.InDelta(t, 78, m["dropoff_along_route_km"], 1)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestDriverSearchRejectsBadInput(t *testing.T) {
	s := newTestServer(t, seededStore(t), Options{})
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed json", `{"pickup":`, "body"},
		{"missing pickup", `{"dropoff":{"lat":0.7,"lng":0}}`, "pickup"},
		{"missing lat", `{"pickup":{"lng":0},"dropoff":{"lat":0.7,"lng":0}}`, "pickup.lat"},
		{"lat out of range", `{"pickup":{"lat":91,"lng":0},"dropoff":{"lat":0.7,"lng":0}}`, "pickup.lat"},
		{"radius above max", `{"pickup":{"lat":0.3,"lng":0},"dropoff":{"lat":0.7,"lng":0},"radius_km":60}`, "radius_km"},
		{"limit above max", `{"pickup":{"lat":0.3,"lng":0},"dropoff":{"lat":0.7,"lng":0},"limit":51}`, "limit"},
		{"bad date", `{"pickup":{"lat":0.3,"lng":0},"dropoff":{"lat":0.7,"lng":0},"date":"05/02/2026"}`, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, s, http.MethodPost, "/api/v1/drivers/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, resp.Error, tt.field)
		})
	}
}

func TestDriverSearchDateCutoff(t *testing.T) {
	s := newTestServer(t, seededStore(t), Options{})
	body := `{"pickup":{"lat":0.3,"lng":0},"dropoff":{"lat":0.7,"lng":0},"date":"%s"}`

	rec, resp := do(t, s, http.MethodPost, "/api/v1/drivers/search", strings.Replace(body, "%s", "2026-05-01", 1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, resp.Count)

	// the route departs on May 1st, before a May 2nd cutoff
	rec, resp = do(t, s, http.MethodPost, "/api/v1/drivers/search", strings.Replace(body, "%s", "2026-05-02", 1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Data)
}

func TestPassengerSearch(t *testing.T) {
	s := newTestServer(t, seededStore(t), Options{})
	polyline := geo.EncodePolyline(models.RouteGeometry{pt(0, 0), pt(0, 1)})

	tests := []struct {
		name   string
		body   string
		status int
		count  int
	}{
		{"geojson route", `{"route":{"type":"LineString","coordinates":[[0,0],[0,1]]}}`, http.StatusOK, 1},
		{"encoded polyline", `{"polyline":"` + polyline + `"}`, http.StatusOK, 1},
		{"reverse route", `{"route":{"type":"LineString","coordinates":[[0,1],[0,0]]}}`, http.StatusOK, 0},
		{"no route", `{"radius_km":5}`, http.StatusBadRequest, 0},
		{"both route forms", `{"route":{"type":"LineString","coordinates":[[0,0],[0,1]]},"polyline":"` + polyline + `"}`, http.StatusBadRequest, 0},
		{"point geometry", `{"route":{"type":"Point","coordinates":[0,0]}}`, http.StatusBadRequest, 0},
		{"out of range vertex", `{"route":{"type":"LineString","coordinates":[[0,0],[0,95]]}}`, http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := do(t, s, http.MethodPost, "/api/v1/passengers/search", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.count, resp.Count)
			if tt.count > 0 {
				assert.Equal(t, "p1", resp.Data[0]["id"])
			}
		})
	}
}

func TestRoutePassengers(t *testing.T) {
	s := newTestServer(t, seededStore(t), Options{})

	rec, resp := do(t, s, http.MethodGet, "/api/v1/routes/r1/passengers?radius_km=5&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "p1", resp.Data[0]["id"])

	rec, resp = do(t, s, http.MethodGet, "/api/v1/routes/missing/passengers", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, resp.Error, "not found")

	rec, _ = do(t, s, http.MethodGet, "/api/v1/routes/r1/passengers?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRideWantedSearch(t *testing.T) {
	s := newTestServer(t, seededStore(t), Options{})

	rec, resp := do(t, s, http.MethodPost, "/api/v1/ride-wanted/search", `{"from":{"lat":0,"lng":0},"to":{"lat":0,"lng":1}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, 12.3, resp.Data[0]["from_distance_km"])
	assert.Equal(t, 0.0, resp.Data[0]["to_distance_km"])

	rec, _ = do(t, s, http.MethodPost, "/api/v1/ride-wanted/search", `{"from":{"lat":0,"lng":0},"to":{"lat":0,"lng":1},"radius_km":101}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingStore struct{ matcher.Candidates }

func (failingStore) DriverRoutes(context.Context, storage.Query) ([]*models.DriverRoute, error) {
	return nil, errors.New("connection reset by peer")
}

func TestStoreFailureIsInternalError(t *testing.T) {
	s := newTestServer(t, failingStore{}, Options{})
	rec, resp := do(t, s, http.MethodPost, "/api/v1/drivers/search", `{"pickup":{"lat":0.3,"lng":0},"dropoff":{"lat":0.7,"lng":0}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", resp.Error)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, seededStore(t), Options{})
	rec, _ := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(t, seededStore(t), Options{Ready: func(context.Context) error { return errors.New("redis down") }})
	rec, _ = do(t, down, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWSSearchSession(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t, seededStore(t), Options{}))
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/search", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"id": "q1",
		"op": "drivers",
		"query": map[string]any{
			"pickup":  map[string]float64{"lat": 0.3, "lng": 0.01},
			"dropoff": map[string]float64{"lat": 0.7, "lng": 0.01},
		},
	}))
	var reply struct {
		ID    string           `json:"id"`
		Op    string           `json:"op"`
		Data  []map[string]any `json:"data"`
		Count int              `json:"count"`
		Error string           `json:"error"`
	}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "q1", reply.ID)
	assert.Empty(t, reply.Error)
	require.Equal(t, 1, reply.Count)
	assert.Equal(t, "r1", reply.Data[0]["id"])

	require.NoError(t, conn.WriteJSON(map[string]any{"id": "q2", "op": "teleport", "query": map[string]any{}}))
	reply.Error = ""
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "q2", reply.ID)
	assert.Contains(t, reply.Error, "unknown operation")
}

func TestWriteJSONUnencodableValueIs500(t *testing.T) {
	rec := httptest.NewRecorder()
	err := writeJSON(rec, http.StatusOK, envelope{Data: []float64{math.NaN()}, Count: 1})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	require.NoError(t, writeJSON(rec, http.StatusCreated, envelope{Data: []int{1}, Count: 1}))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"data":[1],"count":1}`, rec.Body.String())
}
