package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/route-matching/internal/models"
)

const maxBodyBytes = 1 << 20

// Search operations as named on the wire by the WebSocket envelope.
const (
	opDrivers    = "drivers"
	opPassengers = "passengers"
	opRideWanted = "ride_wanted"
)

type envelope struct {
	Data  any `json:"data"`
	Count int `json:"count"`
}

// search decodes a request body for op and runs it. The result is a slice of matches.
func (s *Server) search(ctx context.Context, op string, body []byte) (any, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	switch op {
	case opDrivers:
		var req driverSearchRequest
		if err := decodeRequest(body, &req); err != nil {
			return nil, 0, err
		}
		q, err := req.query()
		if err != nil {
			return nil, 0, err
		}
		res, err := s.Matcher.FindDrivers(ctx, q)
		return res, len(res), err
	case opPassengers:
		var req passengerSearchRequest
		if err := decodeRequest(body, &req); err != nil {
			return nil, 0, err
		}
		q, err := req.query()
		if err != nil {
			return nil, 0, err
		}
		res, err := s.Matcher.FindPassengers(ctx, q)
		return res, len(res), err
	case opRideWanted:
		var req wantedSearchRequest
		if err := decodeRequest(body, &req); err != nil {
			return nil, 0, err
		}
		q, err := req.query()
		if err != nil {
			return nil, 0, err
		}
		res, err := s.Matcher.FindRideWanted(ctx, q)
		return res, len(res), err
	}
	return nil, 0, &models.ValidationError{Field: "op", Reason: fmt.Sprintf("unknown operation %q", op)}
}

func (s *Server) handleSearch(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			s.writeError(w, r, &models.ValidationError{Field: "body", Reason: err.Error()})
			return
		}
		res, n, err := s.search(r.Context(), op, body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeOK(w, r, envelope{Data: res, Count: n})
	}
}

func (s *Server) handleRoutePassengers(w http.ResponseWriter, r *http.Request) {
	q, err := routePassengersQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.StoreTimeout)
	defer cancel()
	res, err := s.Matcher.FindPassengersForRoute(ctx, mux.Vars(r)["id"], q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeOK(w, r, envelope{Data: res, Count: len(res)})
}

func statusFor(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("search failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
		msg = "internal error"
	}
	_ = writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON encodes v before writing the header. If v cannot be encoded it answers 500
// and returns the encode error.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
	return err
}

func (s *Server) writeOK(w http.ResponseWriter, r *http.Request, v any) {
	if err := writeJSON(w, http.StatusOK, v); err != nil {
		s.logger.Error("encode response failed", "route", routeTemplate(r), "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}
