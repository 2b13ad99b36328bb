package models

import (
	"fmt"
	"math"
	"time"
)

// GeoPoint is a WGS84 latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports a ValidationError when the point is non-finite or out of range.
func (p GeoPoint) Validate(field string) error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return &ValidationError{Field: field, Reason: "coordinates must be finite"}
	}
	if p.Lat < -90 || p.Lat > 90 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("lat %v out of range [-90, 90]", p.Lat)}
	}
	if p.Lng < -180 || p.Lng > 180 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("lng %v out of range [-180, 180]", p.Lng)}
	}
	return nil
}

// RouteGeometry is a driver's planned path, origin first.
type RouteGeometry []GeoPoint

// Validate checks that the route is non-empty and every vertex is a valid point.
func (r RouteGeometry) Validate(field string) error {
	if len(r) == 0 {
		return &ValidationError{Field: field, Reason: "route has no points"}
	}
	for i, p := range r {
		if err := p.Validate(fmt.Sprintf("%s[%d]", field, i)); err != nil {
			return err
		}
	}
	return nil
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

type Kind string

const (
	KindDriverRoute    Kind = "driver_route"
	KindPassengerRoute Kind = "passenger_route"
	KindRideWanted     Kind = "ride_wanted"
)

func (k Kind) Valid() bool {
	return k == KindDriverRoute || k == KindPassengerRoute || k == KindRideWanted
}

// Candidate is a stored record considered during a search. The concrete type is one of
// *DriverRoute, *PassengerRoute or *RideWanted.
type Candidate interface {
	CandidateID() string
	Kind() Kind
	Endpoints() (from, to GeoPoint)
	Eligible(cutoff time.Time) bool
}

// Trip holds the fields shared by every candidate kind.
type Trip struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	From        GeoPoint  `json:"from"`
	To          GeoPoint  `json:"to"`
	DepartureAt time.Time `json:"departure_at"`
	Status      Status    `json:"status"`
}

func (t *Trip) CandidateID() string { return t.ID }

func (t *Trip) Endpoints() (from, to GeoPoint) { return t.From, t.To }

// Eligible reports whether the trip is active and departs at or after cutoff.
func (t *Trip) Eligible(cutoff time.Time) bool {
	return t.Status == StatusActive && !t.DepartureAt.Before(cutoff)
}

// DriverRoute is a driver's posted trip with its planned path.
type DriverRoute struct {
	Trip
	Route          RouteGeometry `json:"route"`
	SeatsAvailable int           `json:"seats_available"`
}

func (d *DriverRoute) Kind() Kind { return KindDriverRoute }

// PassengerRoute is a passenger trip that can be picked up along a driver's path.
type PassengerRoute struct {
	Trip
	SeatsNeeded int `json:"seats_needed"`
}

func (p *PassengerRoute) Kind() Kind { return KindPassengerRoute }

// RideWanted is a passenger post with only two points and no path.
type RideWanted struct {
	Trip
	SeatsNeeded int `json:"seats_needed"`
}

func (w *RideWanted) Kind() Kind { return KindRideWanted }

// DriverMatch is a driver route that can carry the passenger from pickup to dropoff.
type DriverMatch struct {
	*DriverRoute
	PickupDistanceKm    float64 `json:"pickup_distance_km"`
	DropoffDistanceKm   float64 `json:"dropoff_distance_km"`
	PickupAlongRouteKm  float64 `json:"pickup_along_route_km"`
	DropoffAlongRouteKm float64 `json:"dropoff_along_route_km"`
}

// PassengerMatch is a passenger trip that lies along the query route.
type PassengerMatch struct {
	*PassengerRoute
	OriginDistanceKm        float64 `json:"origin_distance_km"`
	DestinationDistanceKm   float64 `json:"destination_distance_km"`
	OriginAlongRouteKm      float64 `json:"origin_along_route_km"`
	DestinationAlongRouteKm float64 `json:"destination_along_route_km"`
}

// WantedMatch is a ride-wanted post whose endpoints are both near the query endpoints.
// Distances are rounded to 0.1 km.
type WantedMatch struct {
	*RideWanted
	FromDistanceKm float64 `json:"from_distance_km"`
	ToDistanceKm   float64 `json:"to_distance_km"`
}

// SearchEvent is published after every successful search.
type SearchEvent struct {
	Operation  string    `json:"operation"`
	Candidates int       `json:"candidates"`
	Matches    int       `json:"matches"`
	Excluded   int       `json:"excluded"`
	LatencyMs  int64     `json:"latency_ms"`
	At         time.Time `json:"at"`
}
