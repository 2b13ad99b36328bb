package httpapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/paulmach/orb/geojson"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/matcher"
	"github.com/example/route-matching/internal/models"
)

const dateLayout = "2006-01-02"

var (
	validate = newValidator()
	trans    ut.Translator
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	english := en.New()
	uni := ut.New(english, english)
	trans, _ = uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(v, trans)
	return v
}

// validateRequest runs the struct tags and reports the first failure as a ValidationError.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return &models.ValidationError{Reason: err.Error()}
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return &models.ValidationError{Field: field, Reason: fe.Translate(trans)}
}

func decodeRequest(body []byte, req any) error {
	if err := json.Unmarshal(body, req); err != nil {
		return &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	return validateRequest(req)
}

type pointRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

func (p *pointRequest) point() models.GeoPoint {
	return models.GeoPoint{Lat: *p.Lat, Lng: *p.Lng}
}

type driverSearchRequest struct {
	Pickup   *pointRequest `json:"pickup" validate:"required"`
	Dropoff  *pointRequest `json:"dropoff" validate:"required"`
	RadiusKm float64       `json:"radius_km" validate:"gte=0"`
	Date     string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	MinSeats int           `json:"min_seats" validate:"gte=0"`
	Limit    int           `json:"limit" validate:"gte=0"`
}

func (r *driverSearchRequest) query() (matcher.DriverQuery, error) {
	cutoff, err := parseDate(r.Date)
	if err != nil {
		return matcher.DriverQuery{}, err
	}
	return matcher.DriverQuery{
		Pickup:   r.Pickup.point(),
		Dropoff:  r.Dropoff.point(),
		RadiusKm: r.RadiusKm,
		Cutoff:   cutoff,
		MinSeats: r.MinSeats,
		Limit:    r.Limit,
	}, nil
}

// passengerSearchRequest takes the route either as a GeoJSON LineString or as an
// encoded polyline, never both.
type passengerSearchRequest struct {
	Route    *geojson.Geometry `json:"route" validate:"required_without=Polyline"`
	Polyline string            `json:"polyline" validate:"required_without=Route,excluded_with=Route"`
	RadiusKm float64           `json:"radius_km" validate:"gte=0"`
	Date     string            `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Limit    int               `json:"limit" validate:"gte=0"`
}

func (r *passengerSearchRequest) query() (matcher.PassengerQuery, error) {
	var (
		route models.RouteGeometry
		err   error
	)
	if r.Polyline != "" {
		route, err = geo.RouteFromPolyline(r.Polyline)
	} else {
		route, err = geo.RouteFromGeoJSON(r.Route)
	}
	if err != nil {
		return matcher.PassengerQuery{}, err
	}
	cutoff, err := parseDate(r.Date)
	if err != nil {
		return matcher.PassengerQuery{}, err
	}
	return matcher.PassengerQuery{Route: route, RadiusKm: r.RadiusKm, Cutoff: cutoff, Limit: r.Limit}, nil
}

type wantedSearchRequest struct {
	From     *pointRequest `json:"from" validate:"required"`
	To       *pointRequest `json:"to" validate:"required"`
	RadiusKm float64       `json:"radius_km" validate:"gte=0"`
	Date     string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Limit    int           `json:"limit" validate:"gte=0"`
}

func (r *wantedSearchRequest) query() (matcher.WantedQuery, error) {
	cutoff, err := parseDate(r.Date)
	if err != nil {
		return matcher.WantedQuery{}, err
	}
	return matcher.WantedQuery{
		From:     r.From.point(),
		To:       r.To.point(),
		RadiusKm: r.RadiusKm,
		Cutoff:   cutoff,
		Limit:    r.Limit,
	}, nil
}

// parseDate turns YYYY-MM-DD into that day's 00:00 UTC. Empty means "now", which the
// matcher fills in.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return t, nil
}

// routePassengersQuery reads the query string of GET /routes/{id}/passengers.
func routePassengersQuery(v url.Values) (matcher.PassengerQuery, error) {
	var (
		q   matcher.PassengerQuery
		err error
	)
	if s := v.Get("radius_km"); s != "" {
		if q.RadiusKm, err = strconv.ParseFloat(s, 64); err != nil {
			return q, &models.ValidationError{Field: "radius_km", Reason: fmt.Sprintf("not a number: %q", s)}
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil {
			return q, &models.ValidationError{Field: "limit", Reason: fmt.Sprintf("not an integer: %q", s)}
		}
	}
	q.Cutoff, err = parseDate(v.Get("date"))
	return q, err
}
