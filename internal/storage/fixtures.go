package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/example/route-matching/internal/models"
)

// Fixture is the per-kind candidate file layout.
type Fixture struct {
	DriverRoutes    []*models.DriverRoute    `json:"driver_routes"`
	PassengerRoutes []*models.PassengerRoute `json:"passenger_routes"`
	RideWanted      []*models.RideWanted     `json:"ride_wanted"`
}

// Load reads candidates into w and returns how many records were applied. The input is
// either a JSON array of candidate updates, as published on the update topic, or a
// Fixture object.
func Load(ctx context.Context, w Writer, r io.Reader) (int, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return 0, nil
	}
	if data[0] == '[' {
		var updates []models.CandidateUpdate
		if err := json.Unmarshal(data, &updates); err != nil {
			return 0, fmt.Errorf("decode candidate updates: %w", err)
		}
		for i, u := range updates {
			if err := Apply(ctx, w, u); err != nil {
				return i, fmt.Errorf("update %d (%s): %w", i, u.ID, err)
			}
		}
		return len(updates), nil
	}

	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("decode fixture: %w", err)
	}
	var all []models.Candidate
	for i, c := range f.DriverRoutes {
		if c == nil {
			return 0, fmt.Errorf("driver_routes[%d]: null entry", i)
		}
		all = append(all, c)
	}
	for i, c := range f.PassengerRoutes {
		if c == nil {
			return 0, fmt.Errorf("passenger_routes[%d]: null entry", i)
		}
		all = append(all, c)
	}
	for i, c := range f.RideWanted {
		if c == nil {
			return 0, fmt.Errorf("ride_wanted[%d]: null entry", i)
		}
		all = append(all, c)
	}
	for i, c := range all {
		from, to := c.Endpoints()
		if err := from.Validate("from"); err != nil {
			return i, fmt.Errorf("%s %s: %w", c.Kind(), c.CandidateID(), err)
		}
		if err := to.Validate("to"); err != nil {
			return i, fmt.Errorf("%s %s: %w", c.Kind(), c.CandidateID(), err)
		}
		if err := w.Upsert(ctx, c); err != nil {
			return i, err
		}
	}
	return len(all), nil
}
