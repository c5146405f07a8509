package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"mercator-hq/compass/pkg/config"
	"mercator-hq/compass/pkg/recommend"
	"mercator-hq/compass/pkg/repository"
	"mercator-hq/compass/pkg/server/middleware"
	"mercator-hq/compass/pkg/telemetry/health"
	"mercator-hq/compass/pkg/telemetry/metrics"
	"mercator-hq/compass/pkg/telemetry/tracing"
)

// BuildInfo is served by the version endpoint.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Server is the Compass HTTP API server.
type Server struct {
	config    *config.ServerConfig
	telemetry *config.TelemetryConfig
	service   *recommend.Service
	repo      *repository.Repository
	health    *health.Checker
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	logger    *slog.Logger
	build     BuildInfo

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l.With("component", "server") }
}

// WithMetrics exposes c on the metrics endpoint.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithTracer starts a server span for every request.
func WithTracer(t *tracing.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithHealthChecker serves readiness from c. Without one, readiness only
// checks the rule repository.
func WithHealthChecker(c *health.Checker) Option {
	return func(s *Server) { s.health = c }
}

// WithTelemetryConfig sets the probe and metrics paths.
func WithTelemetryConfig(cfg *config.TelemetryConfig) Option {
	return func(s *Server) { s.telemetry = cfg }
}

// WithBuildInfo sets the version endpoint payload.
func WithBuildInfo(b BuildInfo) Option {
	return func(s *Server) { s.build = b }
}

// New creates a server for svc and repo.
func New(cfg *config.ServerConfig, svc *recommend.Service, repo *repository.Repository, opts ...Option) *Server {
	s := &Server{
		config:       cfg,
		service:      svc,
		repo:         repo,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.telemetry == nil {
		s.telemetry = &config.Default().Telemetry
	}
	if s.health == nil {
		s.health = health.New(s.telemetry.Health.CheckTimeout)
		s.health.RegisterCheck("repository", repo.Check)
	}
	return s
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "address", s.config.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop asks a running Start to shut down.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		httpServer := s.httpServer
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("API server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler with the middleware chain
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	api := &handlers{service: s.service, repo: s.repo, logger: s.logger}
	mux.HandleFunc("POST /v1/evaluate", api.evaluate)
	mux.HandleFunc("POST /v1/recommendations/shown", api.recordShown)
	mux.HandleFunc("GET /v1/recommendations/{id}", api.getRecommendation)
	mux.HandleFunc("POST /v1/recommendations/{id}/response", api.recordResponse)
	mux.HandleFunc("POST /v1/recommendations/{id}/execute", api.execute)
	mux.HandleFunc("POST /v1/recommendations/{id}/executed", api.recordExecuted)
	mux.HandleFunc("GET /v1/contexts/{id}/recommendations", api.contextRecommendations)
	mux.HandleFunc("POST /v1/contexts/{id}/invalidate", api.invalidate)
	mux.HandleFunc("GET /v1/rules", api.repositoryStatus)
	mux.HandleFunc("GET /v1/rules/{contextType}", api.activeRules)
	mux.HandleFunc("POST /v1/rules/refresh", api.refreshRules)

	hc := s.telemetry.Health
	if hc.Enabled {
		mux.Handle("GET "+hc.LivenessPath, s.health.LivenessHandler())
		mux.Handle("GET "+hc.ReadinessPath, s.health.ReadinessHandler())
		mux.Handle("GET "+hc.VersionPath, health.VersionHandler(s.build.Version, s.build.Commit, s.build.BuildTime))
	}
	if s.telemetry.Metrics.Enabled && s.metrics != nil {
		mux.Handle("GET "+s.telemetry.Metrics.Path, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.Timeout(s.config.RequestTimeout)(handler)
	handler = middleware.BodyLimit(s.config.MaxBodyBytes)(handler)
	handler = middleware.RateLimit(&s.config.RateLimit)(handler)
	if s.tracer != nil {
		handler = tracing.HTTPMiddleware(s.tracer)(handler)
	}
	handler = middleware.RequestID(handler)
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)
	return handler
}
