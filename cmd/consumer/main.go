package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/example/route-matching/internal/config"
	"github.com/example/route-matching/internal/logging"
	"github.com/example/route-matching/internal/models"
	"github.com/example/route-matching/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total candidate update messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid candidate update messages received",
	})
	redisUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_redis_updates_total",
		Help: "Total successful candidate index updates",
	}, []string{"kind", "op"})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total candidate index updates that failed after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	store := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix, logger)
	defer store.Close()

	go serveHealth(cfg.MetricsAddr, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.UpdateTopic, GroupID: cfg.GroupID, MinBytes: 10e3, MaxBytes: 10e6})
	defer r.Close()

	logger.Info("consumer listening", "topic", cfg.UpdateTopic, "brokers", cfg.KafkaBrokers, "group", cfg.GroupID)
	consume(ctx, r, store, cfg, logger)
	logger.Info("shutting down consumer")
}

func serveHealth(addr string, store *storage.RedisStore, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	logger.Info("metrics/health listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func consume(ctx context.Context, r messageReader, w storage.Writer, cfg config.ConsumerConfig, logger *slog.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read failed", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		msgsConsumed.Inc()

		var u models.CandidateUpdate
		if err := json.Unmarshal(m.Value, &u); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "offset", m.Offset, "error", err)
			continue
		}
		if err := applyWithRetry(ctx, w, u, cfg.RetryAttempts, cfg.RetryDelay); err != nil {
			if models.IsValidation(err) {
				msgsInvalid.Inc()
				logger.Warn("invalid candidate update", "candidate_id", u.ID, "kind", u.Kind, "error", err)
				continue
			}
			redisErrors.Inc()
			logger.Error("candidate update failed", "candidate_id", u.ID, "kind", u.Kind, "error", err)
			continue
		}
		redisUpdates.WithLabelValues(string(u.Kind), string(u.Op)).Inc()
	}
}

// applyWithRetry applies u with exponential backoff between attempts. Validation
// failures are returned at once since retrying cannot fix them.
func applyWithRetry(ctx context.Context, w storage.Writer, u models.CandidateUpdate, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = storage.Apply(ctx, w, u)
		if err == nil || models.IsValidation(err) {
			return err
		}
		if i == attempts-1 || !sleep(ctx, delay) {
			break
		}
		delay *= 2
	}
	return errors.Join(err, ctx.Err())
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
