package storage

import (
	"context"
	"time"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/models"
)

// Query selects candidates for one search. Implementations return only active
// candidates departing at or after Cutoff whose endpoints pass the bounding-box
// pre-filter around From and To.
type Query struct {
	From          models.GeoPoint
	To            models.GeoPoint
	MarginDegrees float64
	Cutoff        time.Time
}

// CandidateStore defines the read operations the matcher needs.
type CandidateStore interface {
	DriverRoutes(ctx context.Context, q Query) ([]*models.DriverRoute, error)
	PassengerRoutes(ctx context.Context, q Query) ([]*models.PassengerRoute, error)
	RideWanted(ctx context.Context, q Query) ([]*models.RideWanted, error)
	DriverRoute(ctx context.Context, id string) (*models.DriverRoute, error)
}

// Writer is implemented by the index-backed stores the ingestion consumer feeds.
type Writer interface {
	Upsert(ctx context.Context, c models.Candidate) error
	Remove(ctx context.Context, kind models.Kind, id string) error
}

// Apply routes a decoded update to w.
func Apply(ctx context.Context, w Writer, u models.CandidateUpdate) error {
	c, err := u.Validate()
	if err != nil {
		return err
	}
	if u.Op == models.OpRemove {
		return w.Remove(ctx, u.Kind, u.ID)
	}
	return w.Upsert(ctx, c)
}

// matches is the exact pre-filter every store applies after its coarse index lookup.
func (q Query) matches(c models.Candidate) bool {
	if !c.Eligible(q.Cutoff) {
		return false
	}
	from, to := c.Endpoints()
	switch c.Kind() {
	case models.KindRideWanted:
		return geo.NearEndpoints(q.From, q.To, from, to, q.MarginDegrees)
	case models.KindPassengerRoute:
		// From and To are the driver route's ends here
		return geo.NearRoute(from, to, q.From, q.To, q.MarginDegrees)
	}
	return geo.NearRoute(q.From, q.To, from, to, q.MarginDegrees)
}

func collect[T models.Candidate](cands []models.Candidate) []T {
	out := make([]T, 0, len(cands))
	for _, c := range cands {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
