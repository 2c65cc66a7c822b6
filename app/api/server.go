// Package api is the operational HTTP surface: health, metrics, and a
// read-only leaderboard. The public contest site lives elsewhere.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	verificationdb "github.com/km-mtb/kmtb-bot/app/modules/verification/repositories"
)

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// QueueHealth reports whether the job queue can reach its backing table.
type QueueHealth interface {
	HealthCheck(ctx context.Context) error
}

// LeaderboardReader serves the current standings.
type LeaderboardReader interface {
	Leaderboard(ctx context.Context) ([]verificationdb.LeaderboardRow, error)
}

// Server is the ops HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the ops server on addr.
func NewServer(addr string, db Pinger, queue QueueHealth, results LeaderboardReader, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			logger.Error("health check failed", slog.String("error", err.Error()))
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := queue.HealthCheck(req.Context()); err != nil {
			logger.Error("health check failed", slog.String("error", err.Error()))
			http.Error(w, "queue unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/leaderboard", func(w http.ResponseWriter, req *http.Request) {
		rows, err := results.Leaderboard(req.Context())
		if err != nil {
			logger.Error("leaderboard read failed", slog.String("error", err.Error()))
			http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
			return
		}
		if rows == nil {
			rows = []verificationdb.LeaderboardRow{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rows); err != nil {
			logger.Error("failed to encode leaderboard", slog.String("error", err.Error()))
		}
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
