package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/route-matching/internal/models"
	"github.com/example/route-matching/internal/observability"
	"github.com/example/route-matching/internal/storage"
)

const (
	OpFindDrivers    = "find_drivers"
	OpFindPassengers = "find_passengers"
	OpRideWanted     = "ride_wanted"
)

// Candidates is the read side of the candidate store the matcher depends on.
type Candidates interface {
	DriverRoutes(ctx context.Context, q storage.Query) ([]*models.DriverRoute, error)
	PassengerRoutes(ctx context.Context, q storage.Query) ([]*models.PassengerRoute, error)
	RideWanted(ctx context.Context, q storage.Query) ([]*models.RideWanted, error)
	DriverRoute(ctx context.Context, id string) (*models.DriverRoute, error)
}

type Publisher interface {
	PublishSearch(ctx context.Context, ev models.SearchEvent) error
}

type Service struct {
	Store  Candidates
	Events Publisher // optional
	Limits Limits
	Logger *slog.Logger
	Now    func() time.Time
}

func NewService(store Candidates, limits Limits, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Limits: limits, Logger: logger, Now: time.Now}
}

// FindDrivers returns driver routes a passenger can ride from pickup to dropoff.
func (s *Service) FindDrivers(ctx context.Context, q DriverQuery) ([]models.DriverMatch, error) {
	start := time.Now()
	q, err := s.Limits.normalizeDriver(q)
	if err != nil {
		return nil, err
	}
	q.Cutoff = s.cutoff(q.Cutoff)
	cands, err := s.Store.DriverRoutes(ctx, storage.Query{From: q.Pickup, To: q.Dropoff, MarginDegrees: s.Limits.MarginDegrees, Cutoff: q.Cutoff})
	if err != nil {
		return nil, fmt.Errorf("fetch driver routes: %w", err)
	}
	out, excluded := MatchDrivers(cands, q, s.Limits.MarginDegrees)
	s.observe(ctx, OpFindDrivers, len(cands), len(out), excluded, start)
	return out, nil
}

// FindPassengers returns passenger trips that fit along a driver's route.
func (s *Service) FindPassengers(ctx context.Context, q PassengerQuery) ([]models.PassengerMatch, error) {
	start := time.Now()
	q, err := s.Limits.normalizePassenger(q)
	if err != nil {
		return nil, err
	}
	q.Cutoff = s.cutoff(q.Cutoff)
	sq := storage.Query{From: q.Route[0], To: q.Route[len(q.Route)-1], MarginDegrees: s.Limits.MarginDegrees, Cutoff: q.Cutoff}
	cands, err := s.Store.PassengerRoutes(ctx, sq)
	if err != nil {
		return nil, fmt.Errorf("fetch passenger routes: %w", err)
	}
	out, excluded := MatchPassengers(cands, q, s.Limits.MarginDegrees)
	s.observe(ctx, OpFindPassengers, len(cands), len(out), excluded, start)
	return out, nil
}

// FindPassengersForRoute runs FindPassengers against a stored driver route. A missing
// route surfaces as models.ErrNotFound.
func (s *Service) FindPassengersForRoute(ctx context.Context, routeID string, q PassengerQuery) ([]models.PassengerMatch, error) {
	dr, err := s.Store.DriverRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("load driver route %s: %w", routeID, err)
	}
	q.Route = dr.Route
	return s.FindPassengers(ctx, q)
}

// FindRideWanted returns ride-wanted posts with both endpoints near the query's.
func (s *Service) FindRideWanted(ctx context.Context, q WantedQuery) ([]models.WantedMatch, error) {
	start := time.Now()
	q, err := s.Limits.normalizeWanted(q)
	if err != nil {
		return nil, err
	}
	q.Cutoff = s.cutoff(q.Cutoff)
	cands, err := s.Store.RideWanted(ctx, storage.Query{From: q.From, To: q.To, MarginDegrees: s.Limits.MarginDegrees, Cutoff: q.Cutoff})
	if err != nil {
		return nil, fmt.Errorf("fetch ride wanted: %w", err)
	}
	out, excluded := MatchWanted(cands, q, s.Limits.MarginDegrees)
	s.observe(ctx, OpRideWanted, len(cands), len(out), excluded, start)
	return out, nil
}

func (s *Service) cutoff(c time.Time) time.Time {
	if !c.IsZero() {
		return c
	}
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) observe(ctx context.Context, op string, candidates, matches int, excluded []Exclusion, start time.Time) {
	elapsed := time.Since(start)
	observability.SearchesTotal.WithLabelValues(op).Inc()
	observability.MatchesReturned.WithLabelValues(op).Add(float64(matches))
	observability.MatchLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	for _, ex := range excluded {
		observability.CandidatesExcluded.WithLabelValues(op, ex.Reason).Inc()
		s.Logger.Warn("candidate excluded", "operation", op, "candidate_id", ex.CandidateID, "reason", ex.Reason, "error", ex.Err)
	}
	if s.Events == nil {
		return
	}
	ev := models.SearchEvent{
		Operation:  op,
		Candidates: candidates,
		Matches:    matches,
		Excluded:   len(excluded),
		LatencyMs:  elapsed.Milliseconds(),
		At:         time.Now().UTC(),
	}
	// best effort, a broker outage must not fail the search
	if err := s.Events.PublishSearch(ctx, ev); err != nil {
		s.Logger.Warn("publish search event failed", "operation", op, "error", err)
	}
}
