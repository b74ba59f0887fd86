// Deenboard Display Agent - Masjid Kiosk Sync and Remote Command Core
// Copyright 2026 Deenboard
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deenboard/display-agent

// Package diag serves the local-only diagnostics endpoint: liveness,
// a status snapshot, and Prometheus metrics. Meant to be bound to
// loopback on the kiosk for field debugging.
package diag

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deenboard/display-agent/internal/logging"
)

// StatusSource provides the pieces of the /statusz snapshot. All
// methods must be safe for concurrent use.
type StatusSource interface {
	ConnectionState() string
	Online() bool
	BreakerStates() map[string]string
	CacheStats() map[string]any
	LastSync() map[string]time.Time
	Uptime() time.Duration
}

// Server is the diagnostics HTTP listener.
type Server struct {
	addr   string
	source StatusSource
	http   *http.Server
}

func New(addr string, source StatusSource) *Server {
	s := &Server{addr: addr, source: source}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/statusz", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := map[string]any{
		"uptimeSeconds": int64(s.source.Uptime().Seconds()),
		"online":        s.source.Online(),
		"connection":    s.source.ConnectionState(),
		"breakers":      s.source.BreakerStates(),
		"cache":         s.source.CacheStats(),
		"lastSync":      s.source.LastSync(),
		"time":          time.Now().UTC(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		logging.Error().Err(err).Msg("Failed to encode status snapshot")
	}
}

// Serve runs the listener until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.addr).Msg("Diagnostics listener starting")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
