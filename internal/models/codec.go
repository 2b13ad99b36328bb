package models

import (
	"encoding/json"
	"fmt"
)

type UpdateOp string

const (
	OpUpsert UpdateOp = "upsert"
	OpRemove UpdateOp = "remove"
)

// CandidateUpdate is the message the ingestion consumer reads from Kafka. Candidate is
// only set for upserts.
type CandidateUpdate struct {
	Op        UpdateOp        `json:"op"`
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// DecodeCandidate unmarshals data into the concrete type for kind.
func DecodeCandidate(kind Kind, data []byte) (Candidate, error) {
	var c Candidate
	switch kind {
	case KindDriverRoute:
		c = &DriverRoute{}
	case KindPassengerRoute:
		c = &PassengerRoute{}
	case KindRideWanted:
		c = &RideWanted{}
	default:
		return nil, fmt.Errorf("unknown candidate kind %q", kind)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return c, nil
}

// Validate checks the envelope and, for upserts, decodes the candidate.
func (u CandidateUpdate) Validate() (Candidate, error) {
	if u.ID == "" {
		return nil, &ValidationError{Field: "id", Reason: "required"}
	}
	switch u.Op {
	case OpRemove:
		if !u.Kind.Valid() {
			return nil, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", u.Kind)}
		}
		return nil, nil
	case OpUpsert:
	default:
		return nil, &ValidationError{Field: "op", Reason: fmt.Sprintf("unknown op %q", u.Op)}
	}
	c, err := DecodeCandidate(u.Kind, u.Candidate)
	if err != nil {
		return nil, &ValidationError{Field: "candidate", Reason: err.Error()}
	}
	if c.CandidateID() != u.ID {
		return nil, &ValidationError{Field: "id", Reason: "does not match candidate id"}
	}
	from, to := c.Endpoints()
	if err := from.Validate("candidate.from"); err != nil {
		return nil, err
	}
	if err := to.Validate("candidate.to"); err != nil {
		return nil, err
	}
	return c, nil
}
