package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/api/middleware"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
)

const defaultCheckTimeout = 5 * time.Second

// Check reports whether a dependency of the process is reachable
type Check func(ctx context.Context) error

// Config holds the server configuration
type Config struct {
	Debug        bool
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CheckTimeout time.Duration
}

// Server serves the liveness, readiness and metrics endpoints of a process
type Server struct {
	config     Config
	metrics    *metrics.Metrics
	checks     map[string]Check
	httpServer *http.Server
}

// New creates a new health and metrics server.
// checks are run on every readiness probe, keyed by the dependency name.
func New(cfg Config, m *metrics.Metrics, checks map[string]Check) *Server {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = defaultCheckTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	s := &Server{
		config:  cfg,
		metrics: m,
		checks:  checks,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler builds the gin router
func (s *Server) Handler() http.Handler {
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger("/", "/healthz", "/metrics"))

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "ALIVE")
	})
	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	return router
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.CheckTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			logger.WarnCtx(ctx, "Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
	})
}

// Start starts the HTTP server and blocks until it is shut down
func (s *Server) Start() error {
	logger.Info("Starting HTTP server", zap.String("address", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
