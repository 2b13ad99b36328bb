package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tidwall/rtree"

	"github.com/example/route-matching/internal/geo"
	"github.com/example/route-matching/internal/models"
)

// MemoryStore keeps candidates in memory with an R-tree over their endpoints. Each
// candidate is indexed twice, once per endpoint, as a zero-area box.
type MemoryStore struct {
	mu      sync.RWMutex
	indexes map[models.Kind]*kindIndex
}

type kindIndex struct {
	tree  rtree.RTreeG[string]
	items map[string]models.Candidate
}

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{indexes: make(map[models.Kind]*kindIndex)}
	for _, k := range []models.Kind{models.KindDriverRoute, models.KindPassengerRoute, models.KindRideWanted} {
		m.indexes[k] = &kindIndex{items: make(map[string]models.Candidate)}
	}
	return m
}

func (m *MemoryStore) Upsert(_ context.Context, c models.Candidate) error {
	idx, ok := m.indexes[c.Kind()]
	if !ok {
		return fmt.Errorf("unknown candidate kind %q", c.Kind())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx.remove(c.CandidateID())
	from, to := c.Endpoints()
	for _, p := range []models.GeoPoint{from, to} {
		pt := [2]float64{p.Lng, p.Lat}
		idx.tree.Insert(pt, pt, c.CandidateID())
	}
	idx.items[c.CandidateID()] = c
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, kind models.Kind, id string) error {
	idx, ok := m.indexes[kind]
	if !ok {
		return fmt.Errorf("unknown candidate kind %q", kind)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx.remove(id)
	return nil
}

func (ix *kindIndex) remove(id string) {
	old, ok := ix.items[id]
	if !ok {
		return
	}
	from, to := old.Endpoints()
	for _, p := range []models.GeoPoint{from, to} {
		pt := [2]float64{p.Lng, p.Lat}
		ix.tree.Delete(pt, pt, id)
	}
	delete(ix.items, id)
}

// Len returns the number of stored candidates of a kind.
func (m *MemoryStore) Len(kind models.Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx, ok := m.indexes[kind]; ok {
		return len(idx.items)
	}
	return 0
}

func (m *MemoryStore) search(kind models.Kind, q Query) []models.Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.indexes[kind]
	seen := make(map[string]struct{})
	var out []models.Candidate
	for _, centre := range []models.GeoPoint{q.From, q.To} {
		box := geo.BoxAround(centre, q.MarginDegrees)
		idx.tree.Search(box.Min, box.Max, func(_, _ [2]float64, id string) bool {
			if _, dup := seen[id]; dup {
				return true
			}
			seen[id] = struct{}{}
			if c := idx.items[id]; c != nil && q.matches(c) {
				out = append(out, c)
			}
			return true
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CandidateID() < out[j].CandidateID() })
	return out
}

func (m *MemoryStore) DriverRoutes(_ context.Context, q Query) ([]*models.DriverRoute, error) {
	return collect[*models.DriverRoute](m.search(models.KindDriverRoute, q)), nil
}

func (m *MemoryStore) PassengerRoutes(_ context.Context, q Query) ([]*models.PassengerRoute, error) {
	return collect[*models.PassengerRoute](m.search(models.KindPassengerRoute, q)), nil
}

func (m *MemoryStore) RideWanted(_ context.Context, q Query) ([]*models.RideWanted, error) {
	return collect[*models.RideWanted](m.search(models.KindRideWanted, q)), nil
}

func (m *MemoryStore) DriverRoute(_ context.Context, id string) (*models.DriverRoute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if dr, ok := m.indexes[models.KindDriverRoute].items[id].(*models.DriverRoute); ok {
		return dr, nil
	}
	return nil, fmt.Errorf("driver route %s: %w", id, models.ErrNotFound)
}
