// Package server assembles the PTY host and HTTP API into a runnable server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/termdeck/internal/api"
	"github.com/GriffinCanCode/termdeck/internal/api/middleware"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/config"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/logging"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/termdeck/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/termdeck/internal/ptyhost"
)

const readHeaderTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	http    *http.Server
	host    *ptyhost.Host
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Service:     "termdeck-server",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing termdeck server",
		zap.String("addr", cfg.Server.Address()),
		zap.String("shell", cfg.Host.Shell),
	)

	metrics := monitoring.NewMetrics()

	host := ptyhost.New(ptyhost.Config{
		Shell:           cfg.Host.Shell,
		Cwd:             cfg.Host.Cwd,
		ScrollbackBytes: cfg.Host.ScrollbackBytes,
		Logger:          logger.Logger,
		Metrics:         metrics,
	})

	tracer := tracing.New("termdeck-server", logger.Named("tracing"))

	opts := api.Options{
		Host:        host,
		Metrics:     metrics,
		Logger:      logger.Logger,
		Health:      api.NewHealth(metrics, cfg.Host.Shell),
		Tracer:      tracer,
		CORS:        middleware.DefaultCORSConfig(),
		Development: cfg.Logging.Development,
	}
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limit := middleware.DefaultRateLimitConfig()
		limit.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limit.Burst = cfg.RateLimit.Burst
		opts.RateLimit = &limit
	}

	logger.Info("Server initialized successfully")

	return &Server{
		http: &http.Server{
			Addr:              cfg.Server.Address(),
			Handler:           api.NewRouter(opts),
			ReadHeaderTimeout: readHeaderTimeout,
		},
		host:    host,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until Close is called.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close stops accepting requests, kills every session and flushes logs.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}
	s.host.Shutdown(ctx)
	s.logger.Info("Closed all sessions")
	s.tracer.Close()

	_ = s.logger.Close()
	return err
}
