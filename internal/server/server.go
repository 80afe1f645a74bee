// Package server is the HTTP host: the session API under /api/v1,
// Kubernetes-style health probes, Prometheus metrics and graceful shutdown
// with connection draining.
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/activityflow/internal/health"
	"github.com/felixgeelhaar/activityflow/internal/log"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
	"github.com/felixgeelhaar/activityflow/internal/telemetry"
)

// Server is the HTTP host.
type Server struct {
	httpServer      *http.Server
	probeManager    *health.ProbeManager
	inShutdown      atomic.Bool
	shutdownTimeout time.Duration
	logger          *log.Logger
	metrics         *metrics.Metrics
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g., ":8080", "0.0.0.0:8080")
	Address string

	// ShutdownTimeout bounds connection draining. Defaults to 30 seconds.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 10 seconds.
	ReadTimeout time.Duration

	// WriteTimeout defaults to 30 seconds; screen builds may fetch remote
	// documents.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60 seconds.
	IdleTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server, *chi.Mux)

// WithAPI mounts the session API under /api/v1.
func WithAPI(api *API) Option {
	return func(_ *Server, r *chi.Mux) {
		r.Mount("/api/v1", api.Routes())
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(_ *Server, r *chi.Mux) {
		r.Method(http.MethodGet, "/metrics", h)
	}
}

// WithLogger sets the access logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server, _ *chi.Mux) {
		s.logger = l.WithComponent("server")
	}
}

// WithMetrics records HTTP metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server, _ *chi.Mux) {
		s.metrics = m
	}
}

// NewServer creates the server. Probes are always served; the API and
// /metrics are added by options.
func NewServer(probeManager *health.ProbeManager, cfg Config, opts ...Option) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	s := &Server{
		probeManager:    probeManager,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          log.Discard(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/startup", s.handleStartup)
	// Legacy alias for readiness.
	r.Get("/healthz", s.handleReadiness)

	for _, opt := range opts {
		opt(s, r)
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

// Start marks the process initialized and serves until Shutdown. It returns
// http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	s.probeManager.MarkInitialized()
	s.logger.Info("listening", "address", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown fails readiness, stops keep-alives and drains connections for at
// most ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probeManager.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// IsShuttingDown returns whether Shutdown has been called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

// instrument traces, logs and counts every request by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := telemetry.StartRequestSpan(r.Context(), r.Method, r.URL.Path)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		d := time.Since(start)
		s.metrics.ObserveHTTP(route, r.Method, status, d)
		telemetry.End(span, nil,
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)
		s.logger.DebugContext(ctx, "request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", d,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) writeProbeResponse(w http.ResponseWriter, result *health.ProbeResult, unhealthyStatus int) {
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = unhealthyStatus
	}
	writeJSON(w, status, result)
}

// handleLiveness answers 200 even during shutdown.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckLiveness(r.Context()), http.StatusOK)
}

// handleReadiness answers 503 while shutting down or when a dependency is
// unhealthy.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckReadiness(r.Context()), http.StatusServiceUnavailable)
}

// handleStartup answers 503 until Start has been called.
func (s *Server) handleStartup(w http.ResponseWriter, r *http.Request) {
	s.writeProbeResponse(w, s.probeManager.CheckStartup(r.Context()), http.StatusServiceUnavailable)
}
