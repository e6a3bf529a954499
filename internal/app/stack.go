// Package app assembles the full service stack from the viper configuration.
// The HTTP server and the MCP server share it.
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/tox-signal-mcp-server/internal/api"
	"github.com/tox-signal-mcp-server/internal/config"
	"github.com/tox-signal-mcp-server/internal/database"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/overrides"
	"github.com/tox-signal-mcp-server/internal/repository"
	"github.com/tox-signal-mcp-server/internal/service"
	"github.com/tox-signal-mcp-server/pkg/studydata"
)

// Stack holds the wired collaborators and owns their lifetimes.
type Stack struct {
	Config    *domain.Config
	Logger    *logrus.Logger
	Studies   *service.StudyService
	Overrides overrides.Store
	Cache     *service.AnalysisCache
	DB        *database.DB
	Source    *studydata.Client

	closers []func() error
}

// Build connects every configured backend. On the postgres override backend
// it also migrates the schema and enables run history.
func Build(ctx context.Context, manager *config.Manager, logger *logrus.Logger) (*Stack, error) {
	cfg := manager.GetConfig()
	s := &Stack{Config: cfg, Logger: logger}

	cache, err := service.NewAnalysisCache(cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis cache: %w", err)
	}
	s.Cache = cache
	s.closers = append(s.closers, cache.Close)

	var runs domain.AnalysisRunRepository
	switch cfg.Overrides.Backend {
	case "postgres":
		dbConfig := database.ConfigFromDomain(cfg.Database)
		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.DB = db
		s.closers = append(s.closers, func() error { db.Close(); return nil })

		if err := database.Migrate(ctx, dbConfig.URL(), cfg.Database.MigrationsPath, logger); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		store, err := overrides.NewPostgresStoreFromURL(dbConfig.URL())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create override store: %w", err)
		}
		s.Overrides = store
		runs = repository.NewAnalysisRunRepository(db.Pool, logger)
	case "sqlite":
		store, err := overrides.NewSQLiteStore(cfg.Overrides.SQLitePath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create override store: %w", err)
		}
		s.Overrides = store
	}
	if s.Overrides != nil {
		s.closers = append(s.closers, s.Overrides.Close)
	}

	source, err := studydata.NewClient(cfg.StudyData, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create study data client: %w", err)
	}
	s.Source = source

	var store domain.OverrideStore
	if s.Overrides != nil {
		store = s.Overrides
	}
	s.Studies = service.NewStudyService(logger, service.NewAnalyzer(logger, cfg.Analysis), service.StudyServiceDeps{
		Source:    source,
		Overrides: store,
		Runs:      runs,
		Cache:     cache,
	})

	logger.WithFields(logrus.Fields{
		"override_backend": cfg.Overrides.Backend,
		"run_history":      runs != nil,
		"redis":            cfg.Cache.RedisURL != "",
	}).Info("Service stack initialized")
	return s, nil
}

// HealthChecks returns the readiness probes of the connected backends.
func (s *Stack) HealthChecks() []api.HealthCheck {
	checks := []api.HealthCheck{{Name: "cache", Check: s.Cache.Ping}}
	if s.DB != nil {
		checks = append(checks, api.HealthCheck{Name: "database", Check: s.DB.Health})
	}
	checks = append(checks, api.HealthCheck{Name: "study_data", Check: func(context.Context) error {
		if state := s.Source.State(); state == gobreaker.StateOpen {
			return fmt.Errorf("circuit breaker is %s", state)
		}
		return nil
	}})
	return checks
}

// Close releases the backends in reverse order of acquisition.
func (s *Stack) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Logger.WithError(err).Error("Failed to close backend")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.closers = nil
	return firstErr
}
