package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server provides HTTP endpoints for health monitoring and breaker control.
type Server struct {
	monitor *Monitor
	server  *http.Server
	logger  *slog.Logger
}

// NewServer creates a new health server.
func NewServer(monitor *Monitor, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		logger:  logger,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /health/breakers", s.handleBreakers)
	mux.HandleFunc("POST /breakers/reset", s.handleResetAll)
	mux.HandleFunc("POST /breakers/{name}/reset", s.handleReset)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Stop.
func (s *Server) Start() error {
	s.logger.Info("Health server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth()

	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth())
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Registry().Snapshots())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	registry := s.monitor.Registry()

	if !registry.Reset(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown endpoint %q", name)})
		return
	}
	s.logger.Info("Circuit breaker reset by operator", "endpoint", name, "remote", r.RemoteAddr)

	b, _ := registry.Lookup(name)
	writeJSON(w, http.StatusOK, b.Snapshot())
}

func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	registry := s.monitor.Registry()
	registry.ResetAll()
	s.logger.Info("All circuit breakers reset by operator", "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, registry.Snapshots())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
