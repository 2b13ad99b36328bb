package matcher

import (
	"sort"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/models"
)

// Exclusion records a candidate dropped because its stored data could not be scored.
type Exclusion struct {
	CandidateID string
	Reason      string
	Err         error
}

const (
	ReasonInvalidGeometry = "invalid_geometry"
	ReasonInvalidEndpoint = "invalid_endpoint"
)

// MatchDrivers keeps the driver routes that pass within radius of both pickup and dropoff
// with the pickup strictly before the dropoff along the route. Results are ordered by
// pickup distance, then candidate id, and cut to q.Limit. q must already be normalized.
func MatchDrivers(cands []*models.DriverRoute, q DriverQuery, marginDegrees float64) ([]models.DriverMatch, []Exclusion) {
	out := make([]models.DriverMatch, 0, len(cands))
	var excluded []Exclusion
	for _, c := range cands {
		if c == nil || !c.Eligible(q.Cutoff) || c.SeatsAvailable < q.MinSeats {
			continue
		}
		if err := validEndpoints(c); err != nil {
			excluded = append(excluded, Exclusion{CandidateID: c.ID, Reason: ReasonInvalidEndpoint, Err: err})
			continue
		}
		if !geo.NearRoute(q.Pickup, q.Dropoff, c.From, c.To, marginDegrees) {
			continue
		}
		pickup, err := geo.ProjectOntoRoute(c.Route, q.Pickup)
		if err != nil {
			excluded = append(excluded, Exclusion{CandidateID: c.ID, Reason: ReasonInvalidGeometry, Err: err})
			continue
		}
		if pickup.DistanceKm > q.RadiusKm {
			continue
		}
		dropoff, err := geo.ProjectOntoRoute(c.Route, q.Dropoff)
		if err != nil {
			excluded = append(excluded, Exclusion{CandidateID: c.ID, Reason: ReasonInvalidGeometry, Err: err})
			continue
		}
		if dropoff.DistanceKm > q.RadiusKm || pickup.AlongRouteKm >= dropoff.AlongRouteKm {
			continue
		}
		out = append(out, models.DriverMatch{
			DriverRoute:         c,
			PickupDistanceKm:    pickup.DistanceKm,
			DropoffDistanceKm:   dropoff.DistanceKm,
			PickupAlongRouteKm:  pickup.AlongRouteKm,
			DropoffAlongRouteKm: dropoff.AlongRouteKm,
		})
	}
	rank(out, func(m models.DriverMatch) float64 { return m.PickupDistanceKm }, func(m models.DriverMatch) string { return m.ID })
	return truncate(out, q.Limit), excluded
}

// MatchPassengers keeps the passenger trips whose origin and destination both lie within
// radius of q.Route, origin first. Results are ordered by where the origin falls along
// the route, then candidate id, and cut to q.Limit.
func MatchPassengers(cands []*models.PassengerRoute, q PassengerQuery, marginDegrees float64) ([]models.PassengerMatch, []Exclusion) {
	out := make([]models.PassengerMatch, 0, len(cands))
	var excluded []Exclusion
	start, end := q.Route[0], q.Route[len(q.Route)-1]
	for _, c := range cands {
		if c == nil || !c.Eligible(q.Cutoff) {
			continue
		}
		if err := validEndpoints(c); err != nil {
			excluded = append(excluded, Exclusion{CandidateID: c.ID, Reason: ReasonInvalidEndpoint, Err: err})
			continue
		}
		if !geo.NearRoute(c.From, c.To, start, end, marginDegrees) {
			continue
		}
		origin, err := geo.ProjectOntoRoute(q.Route, c.From)
		if err != nil {
			excluded = append(excluded, Exclusion{CandidateID: c.ID, Reason: ReasonInvalidEndpoint, Err: err})
			continue
		}
		if origin.DistanceKm > q.RadiusKm {
			continue
		}
		dest, err := geo.ProjectOntoRoute(q.Route, c.To)
		if err != nil {
			excluded = append(excluded, Exclusion{CandidateID: c.ID, Reason: ReasonInvalidEndpoint, Err: err})
			continue
		}
		if dest.DistanceKm > q.RadiusKm || origin.AlongRouteKm >= dest.AlongRouteKm {
			continue
		}
		out = append(out, models.PassengerMatch{
			PassengerRoute:          c,
			OriginDistanceKm:        origin.DistanceKm,
			DestinationDistanceKm:   dest.DistanceKm,
			OriginAlongRouteKm:      origin.AlongRouteKm,
			DestinationAlongRouteKm: dest.AlongRouteKm,
		})
	}
	rank(out, func(m models.PassengerMatch) float64 { return m.OriginAlongRouteKm }, func(m models.PassengerMatch) string { return m.ID })
	return truncate(out, q.Limit), excluded
}

// MatchWanted compares ride-wanted endpoints directly, since those posts carry no path.
// The radius test uses exact distances; the reported distances are rounded to 0.1 km and
// the rounded from-distance is the sort key.
func MatchWanted(cands []*models.RideWanted, q WantedQuery, marginDegrees float64) ([]models.WantedMatch, []Exclusion) {
	out := make([]models.WantedMatch, 0, len(cands))
	var excluded []Exclusion
	for _, c := range cands {
		if c == nil || !c.Eligible(q.Cutoff) {
			continue
		}
		if err := validEndpoints(c); err != nil {
			excluded = append(excluded, Exclusion{CandidateID: c.ID, Reason: ReasonInvalidEndpoint, Err: err})
			continue
		}
		if !geo.NearEndpoints(q.From, q.To, c.From, c.To, marginDegrees) {
			continue
		}
		fromKm := geo.HaversineKm(q.From, c.From)
		toKm := geo.HaversineKm(q.To, c.To)
		if fromKm > q.RadiusKm || toKm > q.RadiusKm {
			continue
		}
		out = append(out, models.WantedMatch{
			RideWanted:     c,
			FromDistanceKm: geo.RoundTenth(fromKm),
			ToDistanceKm:   geo.RoundTenth(toKm),
		})
	}
	rank(out, func(m models.WantedMatch) float64 { return m.FromDistanceKm }, func(m models.WantedMatch) string { return m.ID })
	return truncate(out, q.Limit), excluded
}

func validEndpoints(c models.Candidate) error {
	from, to := c.Endpoints()
	if err := from.Validate("from"); err != nil {
		return err
	}
	return to.Validate("to")
}

// rank sorts ascending by key with the candidate id breaking ties, so equal keys come
// back in the same order regardless of how the store returned them.
func rank[T any](items []T, key func(T) float64, id func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		ki, kj := key(items[i]), key(items[j])
		if ki != kj {
			return ki < kj
		}
		return id(items[i]) < id(items[j])
	})
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
