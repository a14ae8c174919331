// Package api exposes the engine over HTTP: sample ingestion, per-device
// insight and alert reads, and a websocket alert stream. The surface is
// deliberately thin; it exists to run the engine, not to be the console.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/fleetwatch-core/internal/config"
	"github.com/platformbuilds/fleetwatch-core/internal/insights"
	"github.com/platformbuilds/fleetwatch-core/internal/monitoring"
	"github.com/platformbuilds/fleetwatch-core/internal/pipeline"
	"github.com/platformbuilds/fleetwatch-core/internal/storage"
	"github.com/platformbuilds/fleetwatch-core/pkg/cache"
	"github.com/platformbuilds/fleetwatch-core/pkg/logger"
)

type Server struct {
	config    *config.Config
	logger    logger.Logger
	cache     cache.ValkeyCache
	store     storage.TelemetryStore
	pipeline  *pipeline.Processor
	generator *insights.Generator
	hub       *Hub

	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(
	cfg *config.Config,
	log logger.Logger,
	valkeyCache cache.ValkeyCache,
	store storage.TelemetryStore,
	processor *pipeline.Processor,
	generator *insights.Generator,
	hub *Hub,
) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config:    cfg,
		logger:    log,
		cache:     valkeyCache,
		store:     store,
		pipeline:  processor,
		generator: generator,
		hub:       hub,
		router:    gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(monitoring.HTTPMetricsMiddleware())

	if s.config.Monitoring.Enabled {
		monitoring.SetupPrometheusMetrics(s.router, s.config.Monitoring.MetricsPath)
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	v1.POST("/samples", s.ingestSamples)
	v1.GET("/devices/:id/insights", s.deviceInsights)
	v1.GET("/devices/:id/alerts", s.deviceAlerts)
	if s.hub != nil {
		v1.GET("/stream/alerts", s.hub.ServeWS)
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("fleetwatch-core API server starting", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutting down fleetwatch-core gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the underlying gin engine so tests can mount it.
func (s *Server) Handler() http.Handler {
	return s.router
}
