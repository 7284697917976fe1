// Package server exposes the dashboard over HTTP for the UI: metric JSON,
// notices, health probes and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/dashwatch/internal/core/domain"
	"github.com/vietddude/dashwatch/internal/dashboard"
	"github.com/vietddude/dashwatch/internal/notify"
	"github.com/vietddude/dashwatch/internal/resilience/classify"
)

// Dashboard is the metric API served by the server.
type Dashboard interface {
	Snapshot(ctx context.Context, useCache bool) (domain.Snapshot, error)
	Metric(ctx context.Context, name string, limit int, useCache bool) (any, error)
	ClearAll()
}

// Notices is the notice board served by the server.
type Notices interface {
	Active() []notify.Notice
	Dismiss(id string)
}

// Server provides the HTTP endpoints.
type Server struct {
	dashboard Dashboard
	notices   Notices
	monitor   *Monitor
	server    *http.Server
	log       *slog.Logger
}

// NewServer creates a new server.
func NewServer(d Dashboard, notices Notices, monitor *Monitor, port int) *Server {
	s := &Server{
		dashboard: d,
		notices:   notices,
		monitor:   monitor,
		log:       slog.Default(),
	}
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the route multiplexer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/dashboard", s.handleSnapshot)
	mux.HandleFunc("GET /api/dashboard/{metric}", s.handleMetric)
	mux.HandleFunc("POST /api/cache/clear", s.handleClearCache)
	mux.HandleFunc("GET /api/notices", s.handleNotices)
	mux.HandleFunc("DELETE /api/notices/{id}", s.handleDismiss)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.dashboard.Snapshot(r.Context(), !fresh(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMetric(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	v, err := s.dashboard.Metric(r.Context(), r.PathValue("metric"), limit, !fresh(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.dashboard.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.notices.Active())
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.notices.Dismiss(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := StatusHealthy
	code := http.StatusOK
	if s.monitor.Degraded() {
		status = StatusDegraded
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dashboard.ErrUnknownMetric):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away
		s.log.Debug("Request aborted", "path", r.URL.Path, "error", err)
	case classify.KindOf(err) == classify.Auth:
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "session expired", Kind: classify.Auth.String()})
	default:
		s.log.Error("Request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error(), Kind: classify.KindOf(err).String()})
	}
}

func fresh(r *http.Request) bool {
	v := r.URL.Query().Get("fresh")
	return v == "1" || v == "true"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
