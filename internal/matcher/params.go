package matcher

import (
	"fmt"
	"time"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/models"
)

// Limits are the accepted parameter ranges. A zero query field takes the default.
type Limits struct {
	MinRadiusKm           float64
	RouteRadiusDefaultKm  float64
	RouteRadiusMaxKm      float64
	WantedRadiusDefaultKm float64
	WantedRadiusMaxKm     float64

	LimitDefault int
	LimitMax     int

	MinSeatsDefault int
	MinSeatsMax     int

	MarginDegrees float64
}

func DefaultLimits() Limits {
	return Limits{
		MinRadiusKm:           1,
		RouteRadiusDefaultKm:  10,
		RouteRadiusMaxKm:      50,
		WantedRadiusDefaultKm: 25,
		WantedRadiusMaxKm:     100,
		LimitDefault:          20,
		LimitMax:              50,
		MinSeatsDefault:       1,
		MinSeatsMax:           10,
		MarginDegrees:         geo.DefaultMarginDegrees,
	}
}

// DriverQuery asks for driver routes that pass near both pickup and dropoff, in that order.
type DriverQuery struct {
	Pickup   models.GeoPoint
	Dropoff  models.GeoPoint
	RadiusKm float64
	Cutoff   time.Time
	MinSeats int
	Limit    int
}

// PassengerQuery asks for passenger trips that fit along Route.
type PassengerQuery struct {
	Route    models.RouteGeometry
	RadiusKm float64
	Cutoff   time.Time
	Limit    int
}

// WantedQuery asks for ride-wanted posts with endpoints near From and To.
type WantedQuery struct {
	From     models.GeoPoint
	To       models.GeoPoint
	RadiusKm float64
	Cutoff   time.Time
	Limit    int
}

func (l Limits) normalizeDriver(q DriverQuery) (DriverQuery, error) {
	var err error
	if err = q.Pickup.Validate("pickup"); err != nil {
		return q, err
	}
	if err = q.Dropoff.Validate("dropoff"); err != nil {
		return q, err
	}
	if q.RadiusKm, err = l.radius(q.RadiusKm, l.RouteRadiusDefaultKm, l.RouteRadiusMaxKm); err != nil {
		return q, err
	}
	if q.Limit, err = l.limit(q.Limit); err != nil {
		return q, err
	}
	if q.MinSeats == 0 {
		q.MinSeats = l.MinSeatsDefault
	}
	if q.MinSeats < 1 || q.MinSeats > l.MinSeatsMax {
		return q, &models.ValidationError{Field: "min_seats", Reason: fmt.Sprintf("must be in [1, %d]", l.MinSeatsMax)}
	}
	return q, nil
}

func (l Limits) normalizePassenger(q PassengerQuery) (PassengerQuery, error) {
	var err error
	if err = q.Route.Validate("route"); err != nil {
		return q, err
	}
	if q.RadiusKm, err = l.radius(q.RadiusKm, l.RouteRadiusDefaultKm, l.RouteRadiusMaxKm); err != nil {
		return q, err
	}
	if q.Limit, err = l.limit(q.Limit); err != nil {
		return q, err
	}
	return q, nil
}

func (l Limits) normalizeWanted(q WantedQuery) (WantedQuery, error) {
	var err error
	if err = q.From.Validate("from"); err != nil {
		return q, err
	}
	if err = q.To.Validate("to"); err != nil {
		return q, err
	}
	if q.RadiusKm, err = l.radius(q.RadiusKm, l.WantedRadiusDefaultKm, l.WantedRadiusMaxKm); err != nil {
		return q, err
	}
	if q.Limit, err = l.limit(q.Limit); err != nil {
		return q, err
	}
	return q, nil
}

func (l Limits) radius(v, def, max float64) (float64, error) {
	if v == 0 {
		v = def
	}
	if !(v >= l.MinRadiusKm && v <= max) {
		return v, &models.ValidationError{Field: "radius_km", Reason: fmt.Sprintf("must be in [%g, %g]", l.MinRadiusKm, max)}
	}
	return v, nil
}

func (l Limits) limit(v int) (int, error) {
	if v == 0 {
		v = l.LimitDefault
	}
	if v < 1 || v > l.LimitMax {
		return v, &models.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be in [1, %d]", l.LimitMax)}
	}
	return v, nil
}

// Validate checks that every default lies inside its range.
func (l Limits) Validate() error {
	switch {
	case l.MinRadiusKm <= 0:
		return fmt.Errorf("min radius must be > 0")
	case l.RouteRadiusDefaultKm < l.MinRadiusKm || l.RouteRadiusDefaultKm > l.RouteRadiusMaxKm:
		return fmt.Errorf("route radius default %g outside [%g, %g]", l.RouteRadiusDefaultKm, l.MinRadiusKm, l.RouteRadiusMaxKm)
	case l.WantedRadiusDefaultKm < l.MinRadiusKm || l.WantedRadiusDefaultKm > l.WantedRadiusMaxKm:
		return fmt.Errorf("wanted radius default %g outside [%g, %g]", l.WantedRadiusDefaultKm, l.MinRadiusKm, l.WantedRadiusMaxKm)
	case l.LimitDefault < 1 || l.LimitDefault > l.LimitMax:
		return fmt.Errorf("limit default %d outside [1, %d]", l.LimitDefault, l.LimitMax)
	case l.MinSeatsDefault < 1 || l.MinSeatsDefault > l.MinSeatsMax:
		return fmt.Errorf("min seats default %d outside [1, %d]", l.MinSeatsDefault, l.MinSeatsMax)
	case l.MarginDegrees <= 0:
		return fmt.Errorf("bounding box margin must be > 0")
	}
	return nil
}
