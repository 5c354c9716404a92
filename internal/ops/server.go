// SPDX-License-Identifier: MIT

// Package ops exposes the simulator's operational surface: liveness,
// readiness against the Redis bus, and Prometheus metrics. It serves Docker
// HEALTHCHECK and Kubernetes probes; it is not part of the fleet API.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Status is the overall probe status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Checker is a named component probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// RedisChecker pings the telemetry bus.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker wraps an existing Redis client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// Server is the operational HTTP endpoint.
type Server struct {
	http     *http.Server
	logger   zerolog.Logger
	version  string
	checkers []Checker
}

// New builds the ops server on the given listen address.
func New(addr, version string, logger zerolog.Logger, checkers ...Checker) *Server {
	s := &Server{
		logger:   logger,
		version:  version,
		checkers: checkers,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.serveHealth)
	r.Get("/readyz", s.serveReady)
	r.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", s.http.Addr).
			Str("event", "ops.started").
			Msg("ops server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Str("event", "ops.stopped").Msg("ops server stopped")
	return <-errCh
}

type probeResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// serveHealth is the liveness probe: always 200 while the process runs.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	resp := probeResponse{
		Status:    StatusHealthy,
		Version:   s.version,
		Timestamp: time.Now(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Str("event", "ops.encode_error").Msg("failed to encode health response")
	}
}

// serveReady reports 200 only when every registered component answers.
func (s *Server) serveReady(w http.ResponseWriter, r *http.Request) {
	resp := probeResponse{
		Status:    StatusHealthy,
		Version:   s.version,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(s.checkers)),
	}

	ready := true
	for _, checker := range s.checkers {
		result := checker.Check(r.Context())
		resp.Checks[checker.Name()] = result
		if result.Status != StatusHealthy {
			ready = false
		}
	}
	if !ready {
		resp.Status = StatusUnhealthy
	}

	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error().Err(err).Str("event", "ops.encode_error").Msg("failed to encode readiness response")
	}
}
