package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"github.com/example/route-matching/internal/config"
	"github.com/example/route-matching/internal/models"
)

// fakeWriter implements storage.Writer for tests
type fakeWriter struct {
	failUpsert int // number of times to fail Upsert before succeeding
	upserts    int
	removes    []string
}

func (f *fakeWriter) Upsert(ctx context.Context, c models.Candidate) error {
	f.upserts++
	if f.upserts <= f.failUpsert {
		return errors.New("redis: connection pool timeout")
	}
	return nil
}

func (f *fakeWriter) Remove(ctx context.Context, kind models.Kind, id string) error {
	f.removes = append(f.removes, id)
	return nil
}

func upsert(id string) models.CandidateUpdate {
	body, _ := json.Marshal(models.RideWanted{Trip: models.Trip{
		ID: id, From: models.GeoPoint{Lat: 1, Lng: 2}, To: models.GeoPoint{Lat: 3, Lng: 4}, Status: models.StatusActive,
	}})
	return models.CandidateUpdate{Op: models.OpUpsert, Kind: models.KindRideWanted, ID: id, Candidate: body}
}

func TestApplyWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeWriter{failUpsert: 2}
	start := time.Now()
	if err := applyWithRetry(context.Background(), f, upsert("w1"), 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.upserts != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.upserts)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("expected exponential backoff between attempts")
	}
}

func TestApplyWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeWriter{failUpsert: 5}
	if err := applyWithRetry(context.Background(), f, upsert("w1"), 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.upserts != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.upserts)
	}
}

func TestApplyWithRetry_DoesNotRetryInvalidUpdates(t *testing.T) {
	f := &fakeWriter{}
	u := upsert("w1")
	u.ID = "other"
	err := applyWithRetry(context.Background(), f, u, 3, time.Second)
	if !models.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.upserts != 0 {
		t.Fatalf("invalid update must not reach the store")
	}
}

type fakeReader struct {
	msgs   [][]byte
	cancel context.CancelFunc
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return kafka.Message{Value: m}, nil
}

func TestConsumeAppliesUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, _ := json.Marshal(upsert("w1"))
	remove, _ := json.Marshal(models.CandidateUpdate{Op: models.OpRemove, Kind: models.KindRideWanted, ID: "w0"})
	r := &fakeReader{msgs: [][]byte{good, []byte("{not json"), remove}, cancel: cancel}
	f := &fakeWriter{}
	cfg := config.ConsumerConfig{RetryAttempts: 1, RetryDelay: time.Millisecond}

	invalidBefore := testutil.ToFloat64(msgsInvalid)
	consume(ctx, r, f, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if f.upserts != 1 || len(f.removes) != 1 || f.removes[0] != "w0" {
		t.Fatalf("unexpected writes: upserts=%d removes=%v", f.upserts, f.removes)
	}
	if got := testutil.ToFloat64(msgsInvalid) - invalidBefore; got != 1 {
		t.Fatalf("expected one invalid message, got %v", got)
	}
}
