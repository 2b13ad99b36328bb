package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/example/route-matching/internal/config"
	httpapi "github.com/example/route-matching/internal/http"
	"github.com/example/route-matching/internal/ingest"
	"github.com/example/route-matching/internal/logging"
	"github.com/example/route-matching/internal/matcher"
	"github.com/example/route-matching/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("route-matching exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	svc := matcher.NewService(store.candidates, cfg.Match.Limits(), logger)
	if pub := openPublisher(cfg, logger); pub != nil {
		svc.Events = pub
		defer pub.Close()
	}

	api := httpapi.NewServer(svc, httpapi.Options{StoreTimeout: cfg.StoreTimeout, Ready: store.ping}, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("route-matching listening", "addr", cfg.HTTPAddr, "store", store.name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type openedStore struct {
	name       string
	candidates storage.CandidateStore
	ping       func(context.Context) error
	close      func()
}

// openStore picks Postgres, then Redis, then the in-memory index.
func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*openedStore, error) {
	switch {
	case cfg.PGDSN != "":
		ctx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.RunMigrations {
			if err := migrate(ctx, ps, cfg.MigrationPath, logger); err != nil {
				_ = ps.Close()
				return nil, err
			}
		}
		return &openedStore{name: "postgres", candidates: ps, ping: ps.Ping, close: func() { _ = ps.Close() }}, nil

	case cfg.RedisAddr != "":
		rs := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix, logger)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &openedStore{name: "redis", candidates: rs, ping: rs.Ping, close: func() { _ = rs.Close() }}, nil
	}

	ms := storage.NewMemoryStore()
	if cfg.CandidatesFile != "" {
		f, err := os.Open(cfg.CandidatesFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		n, err := storage.Load(ctx, ms, f)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", cfg.CandidatesFile, err)
		}
		logger.Info("candidates loaded", "file", cfg.CandidatesFile, "count", n)
	} else {
		logger.Warn("no PG_DSN, REDIS_ADDR or CANDIDATES_FILE set; serving from an empty in-memory store")
	}
	return &openedStore{name: "memory", candidates: ms, close: func() {}}, nil
}

func migrate(ctx context.Context, ps *storage.PostgresStore, path string, logger *slog.Logger) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if err := ps.Migrate(ctx, string(script)); err != nil {
		return fmt.Errorf("apply migration %s: %w", path, err)
	}
	logger.Info("migration applied", "path", path)
	return nil
}

// openPublisher returns nil when no broker is configured. Connection failures are
// logged and the server runs without search events.
func openPublisher(cfg config.ServerConfig, logger *slog.Logger) ingest.SearchPublisher {
	var sinks ingest.Fanout
	if len(cfg.KafkaBrokers) > 0 {
		sinks = append(sinks, ingest.NewKafkaPublisher(cfg.KafkaBrokers, cfg.SearchEventTopic))
	}
	if cfg.AMQPURL != "" {
		p, err := ingest.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, 3)
		if err != nil {
			logger.Warn("search events over amqp disabled", "error", err)
		} else {
			sinks = append(sinks, p)
		}
	}
	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	}
	return sinks
}
