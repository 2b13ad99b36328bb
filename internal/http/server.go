package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/route-matching/internal/matcher"
)

// Options configures the API server.
type Options struct {
	// StoreTimeout bounds each search, candidate fetch included.
	StoreTimeout time.Duration
	// Ready reports backend health for /ready; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	Matcher *matcher.Service
	opts    Options
	logger  *slog.Logger
	mux     *mux.Router
}

func NewServer(m *matcher.Service, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	s := &Server{Matcher: m, opts: opts, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/drivers/search", s.handleSearch(opDrivers)).Methods(http.MethodPost)
	api.HandleFunc("/passengers/search", s.handleSearch(opPassengers)).Methods(http.MethodPost)
	api.HandleFunc("/ride-wanted/search", s.handleSearch(opRideWanted)).Methods(http.MethodPost)
	api.HandleFunc("/routes/{id}/passengers", s.handleRoutePassengers).Methods(http.MethodGet)

	s.mux.HandleFunc("/ws/search", s.handleWSSearch)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.StoreTimeout)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
