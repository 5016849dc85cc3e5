// Package server runs finhub's HTTP listener: the market API, health probes
// and the Prometheus endpoint, with graceful shutdown.
//
// Readiness fails as soon as Shutdown starts so load balancers stop routing
// new requests while in-flight ones drain.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/felixgeelhaar/finhub/internal/config"
	"github.com/felixgeelhaar/finhub/internal/health"
)

// Server is the HTTP listener.
type Server struct {
	httpServer      *http.Server
	probeManager    *health.ProbeManager
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
}

// Config holds listener settings. Zero durations take the defaults.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// FromConfig maps the server section of the application config.
func FromConfig(c config.ServerConfig) Config {
	return Config{
		Address:         c.Address,
		ShutdownTimeout: c.ShutdownTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		IdleTimeout:     c.IdleTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// NewServer creates a server. api serves /api/*; metricsHandler serves
// /metrics. Either may be nil.
func NewServer(probeManager *health.ProbeManager, api http.Handler, metricsHandler http.Handler, cfg Config) *Server {
	cfg.applyDefaults()

	s := &Server{
		probeManager:    probeManager,
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	r := chi.NewRouter()
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/startup", s.handleStartup)
	r.Get("/healthz", s.handleReadiness)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	if api != nil {
		r.Handle("/api/*", api)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and blocks. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and blocks.
func (s *Server) Serve(ln net.Listener) error {
	s.probeManager.MarkInitialized()
	return s.httpServer.Serve(ln)
}

// Shutdown fails readiness, stops keep-alives and waits up to the shutdown
// timeout for connections to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// IsShuttingDown reports whether Shutdown has been called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

func writeProbe(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = unhealthyStatus
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

// handleLiveness always answers 200; a degraded body means shutting down.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.probeManager.CheckLiveness(r.Context()), http.StatusOK)
}

// handleReadiness answers 503 while shutting down or when a dependency is
// unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.probeManager.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}

// handleStartup answers 503 until the server starts serving.
func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, s.probeManager.CheckStartup(r.Context()), http.StatusServiceUnavailable)
}
