// Package api exposes the study analysis service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/middleware"
	"github.com/tox-signal-mcp-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// HealthCheck is a named readiness probe, e.g. the database ping.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	studies       *service.StudyService
	checks        []HealthCheck
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, studies *service.StudyService, logger *logrus.Logger, checks ...HealthCheck) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(cors.New(corsConfig()))
	router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))

	server := &Server{
		configManager: configManager,
		studies:       studies,
		checks:        checks,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/health/ready", s.handleReady)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyzeInput)
		v1.POST("/magnitude-floor", s.handleMagnitudeFloor)
		v1.GET("/lab-rules", s.handleLabRules)
		v1.GET("/syndromes", s.handleSyndromes)
		v1.GET("/cache/stats", s.handleCacheStats)

		studies := v1.Group("/studies/:id")
		{
			studies.POST("/analyze", s.handleAnalyzeStudy)
			studies.GET("/overrides", s.handleListOverrides)
			studies.PUT("/overrides", s.handleSetOverride)
			studies.DELETE("/overrides/:organ", s.handleDeleteOverride)
			studies.GET("/runs", s.handleListRuns)
		}

		v1.GET("/runs/:run_id", s.handleGetRun)
	}
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Correlation-ID"}
	cfg.ExposeHeaders = []string{"Content-Length", "X-Correlation-ID"}
	return cfg
}
