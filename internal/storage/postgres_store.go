package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/paulmach/orb"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/models"
)

// PostgresStore reads candidates from the tables the listing service owns. The
// bounding-box pre-filter runs in SQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStoreFromDB(db, logger), nil
}

func NewPostgresStoreFromDB(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate executes a schema script.
func (p *PostgresStore) Migrate(ctx context.Context, script string) error {
	_, err := p.db.ExecContext(ctx, script)
	return err
}

// nearSQL is WithinBoundingBox over a from_/to_ column pair.
const nearSQL = `(%[1]s_lat BETWEEN %[2]s - $6::float8 AND %[2]s + $6::float8 AND %[1]s_lng BETWEEN %[3]s - $6::float8 AND %[3]s + $6::float8)`

func near(col, lat, lng string) string { return fmt.Sprintf(nearSQL, col, lat, lng) }

// Arguments: $1 cutoff, $2 query from lat, $3 query from lng, $4 query to lat, $5 query to lng, $6 margin.
var (
	driverRoutesSQL = `SELECT id, owner_id, from_lat, from_lng, to_lat, to_lng, route, departure_at, status, seats_available
FROM driver_routes
WHERE status = 'active' AND departure_at >= $1
  AND (` + near("from", "$2::float8", "$3::float8") + ` OR ` + near("to", "$2::float8", "$3::float8") + `)
  AND (` + near("from", "$4::float8", "$5::float8") + ` OR ` + near("to", "$4::float8", "$5::float8") + `)
ORDER BY id`

	// the query's From/To are the ends of the driver's route
	passengerRoutesSQL = `SELECT id, owner_id, from_lat, from_lng, to_lat, to_lng, departure_at, status, seats_needed
FROM passenger_routes
WHERE status = 'active' AND departure_at >= $1
  AND (` + near("from", "$2::float8", "$3::float8") + ` OR ` + near("from", "$4::float8", "$5::float8") + `)
  AND (` + near("to", "$2::float8", "$3::float8") + ` OR ` + near("to", "$4::float8", "$5::float8") + `)
ORDER BY id`

	rideWantedSQL = `SELECT id, owner_id, from_lat, from_lng, to_lat, to_lng, departure_at, status, seats_needed
FROM ride_wanted
WHERE status = 'active' AND departure_at >= $1
  AND ` + near("from", "$2::float8", "$3::float8") + `
  AND ` + near("to", "$4::float8", "$5::float8") + `
ORDER BY id`

	driverRouteByIDSQL = `SELECT id, owner_id, from_lat, from_lng, to_lat, to_lng, route, departure_at, status, seats_available
FROM driver_routes WHERE id = $1`
)

func queryArgs(q Query) []any {
	return []any{q.Cutoff, q.From.Lat, q.From.Lng, q.To.Lat, q.To.Lng, q.MarginDegrees}
}

type scanner interface {
	Scan(dest ...any) error
}

func (p *PostgresStore) scanDriverRoute(row scanner) (*models.DriverRoute, error) {
	var (
		dr    models.DriverRoute
		route []byte
	)
	if err := row.Scan(&dr.ID, &dr.OwnerID, &dr.From.Lat, &dr.From.Lng, &dr.To.Lat, &dr.To.Lng,
		&route, &dr.DepartureAt, &dr.Status, &dr.SeatsAvailable); err != nil {
		return nil, err
	}
	// A malformed route is kept with no geometry; the matcher excludes and counts it.
	var ls orb.LineString
	if err := json.Unmarshal(route, &ls); err != nil {
		p.logger.Warn("driver route geometry unreadable", "candidate_id", dr.ID, "error", err)
	} else {
		dr.Route = geo.RouteFromLineString(ls)
	}
	return &dr, nil
}

func scanTrip(row scanner, t *models.Trip, seats *int) error {
	return row.Scan(&t.ID, &t.OwnerID, &t.From.Lat, &t.From.Lng, &t.To.Lat, &t.To.Lng, &t.DepartureAt, &t.Status, seats)
}

func (p *PostgresStore) DriverRoutes(ctx context.Context, q Query) ([]*models.DriverRoute, error) {
	rows, err := p.db.QueryContext(ctx, driverRoutesSQL, queryArgs(q)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.DriverRoute
	for rows.Next() {
		dr, err := p.scanDriverRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dr)
	}
	return out, rows.Err()
}

func (p *PostgresStore) PassengerRoutes(ctx context.Context, q Query) ([]*models.PassengerRoute, error) {
	rows, err := p.db.QueryContext(ctx, passengerRoutesSQL, queryArgs(q)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.PassengerRoute
	for rows.Next() {
		var pr models.PassengerRoute
		if err := scanTrip(rows, &pr.Trip, &pr.SeatsNeeded); err != nil {
			return nil, err
		}
		out = append(out, &pr)
	}
	return out, rows.Err()
}

func (p *PostgresStore) RideWanted(ctx context.Context, q Query) ([]*models.RideWanted, error) {
	rows, err := p.db.QueryContext(ctx, rideWantedSQL, queryArgs(q)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.RideWanted
	for rows.Next() {
		var rw models.RideWanted
		if err := scanTrip(rows, &rw.Trip, &rw.SeatsNeeded); err != nil {
			return nil, err
		}
		out = append(out, &rw)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DriverRoute(ctx context.Context, id string) (*models.DriverRoute, error) {
	dr, err := p.scanDriverRoute(p.db.QueryRowContext(ctx, driverRouteByIDSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("driver route %s: %w", id, models.ErrNotFound)
	}
	return dr, err
}
