package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/redis/go-redis/v9"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/models"
)

// RedisStore indexes candidate endpoints with Redis GEO sets and keeps each candidate
// as a JSON string. GEOSEARCH gives a coarse circle; the degree-space box is applied
// afterwards in Go.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisStore(addr, password, prefix string, logger *slog.Logger) *RedisStore {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisStoreFromClient(c, prefix, logger)
}

func NewRedisStoreFromClient(c *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = "candidates"
	}
	return &RedisStore{client: c, prefix: prefix, logger: logger}
}

func (r *RedisStore) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) geoKey(kind models.Kind, end string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, kind, end)
}

func (r *RedisStore) dataKey(kind models.Kind, id string) string {
	return fmt.Sprintf("%s:%s:data:%s", r.prefix, kind, id)
}

// Redis GEO only indexes latitudes inside the Web Mercator band.
const redisMaxLat = 85.05112878

// geoLat clamps lat into the band GEOADD accepts. The exact point stays in the JSON blob.
func geoLat(lat float64) float64 {
	return math.Max(-redisMaxLat, math.Min(redisMaxLat, lat))
}

// polar reports whether a margin-degree box around p reaches past the GEO band, where
// GEOSEARCH cannot be trusted and the whole index is scanned instead.
func polar(p models.GeoPoint, marginDegrees float64) bool {
	return math.Abs(p.Lat)+marginDegrees > redisMaxLat
}

func (r *RedisStore) Upsert(ctx context.Context, c models.Candidate) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	kind, id := c.Kind(), c.CandidateID()
	from, to := c.Endpoints()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, r.geoKey(kind, "from"), &redis.GeoLocation{Name: id, Longitude: from.Lng, Latitude: geoLat(from.Lat)})
		pipe.GeoAdd(ctx, r.geoKey(kind, "to"), &redis.GeoLocation{Name: id, Longitude: to.Lng, Latitude: geoLat(to.Lat)})
		pipe.Set(ctx, r.dataKey(kind, id), b, 0)
		return nil
	})
	return err
}

func (r *RedisStore) Remove(ctx context.Context, kind models.Kind, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, r.geoKey(kind, "from"), id)
		pipe.ZRem(ctx, r.geoKey(kind, "to"), id)
		pipe.Del(ctx, r.dataKey(kind, id))
		return nil
	})
	return err
}

func (r *RedisStore) search(ctx context.Context, kind models.Kind, q Query) ([]models.Candidate, error) {
	radius := geo.MarginKm(q.MarginDegrees)
	seen := make(map[string]struct{})
	var ids []string
	for _, centre := range []models.GeoPoint{q.From, q.To} {
		for _, end := range []string{"from", "to"} {
			var (
				members []string
				err     error
			)
			if polar(centre, q.MarginDegrees) {
				members, err = r.client.ZRange(ctx, r.geoKey(kind, end), 0, -1).Result()
			} else {
				members, err = r.client.GeoSearch(ctx, r.geoKey(kind, end), &redis.GeoSearchQuery{
					Longitude:  centre.Lng,
					Latitude:   centre.Lat,
					Radius:     radius,
					RadiusUnit: "km",
				}).Result()
			}
			if err != nil {
				return nil, fmt.Errorf("geosearch %s: %w", kind, err)
			}
			for _, id := range members {
				if _, dup := seen[id]; !dup {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.dataKey(kind, id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	out := make([]models.Candidate, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index and data drifted; the next upsert or remove repairs it
			continue
		}
		c, err := models.DecodeCandidate(kind, []byte(s))
		if err != nil {
			r.logger.Warn("candidate unreadable", "kind", kind, "candidate_id", ids[i], "error", err)
			continue
		}
		if q.matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *RedisStore) DriverRoutes(ctx context.Context, q Query) ([]*models.DriverRoute, error) {
	cands, err := r.search(ctx, models.KindDriverRoute, q)
	return collect[*models.DriverRoute](cands), err
}

func (r *RedisStore) PassengerRoutes(ctx context.Context, q Query) ([]*models.PassengerRoute, error) {
	cands, err := r.search(ctx, models.KindPassengerRoute, q)
	return collect[*models.PassengerRoute](cands), err
}

func (r *RedisStore) RideWanted(ctx context.Context, q Query) ([]*models.RideWanted, error) {
	cands, err := r.search(ctx, models.KindRideWanted, q)
	return collect[*models.RideWanted](cands), err
}

func (r *RedisStore) DriverRoute(ctx context.Context, id string) (*models.DriverRoute, error) {
	b, err := r.client.Get(ctx, r.dataKey(models.KindDriverRoute, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("driver route %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var dr models.DriverRoute
	if err := json.Unmarshal(b, &dr); err != nil {
		return nil, fmt.Errorf("decode driver route %s: %w", id, err)
	}
	return &dr, nil
}
