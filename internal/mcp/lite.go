package mcp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/config"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/overrides"
	"github.com/tox-signal-mcp-server/internal/service"
	"github.com/tox-signal-mcp-server/pkg/studydata"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// It uses an in-memory analysis cache and SQLite for reviewer overrides.
type LiteServer struct {
	*Server
	config *config.LiteConfig
	store  overrides.Store
	cache  *service.AnalysisCache
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*liteOptions)

type liteOptions struct {
	store  overrides.Store
	logger *logrus.Logger
	source domain.StudyDataSource
}

// WithOverrideStore sets a custom override store.
func WithOverrideStore(store overrides.Store) LiteServerOption {
	return func(o *liteOptions) {
		o.store = store
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(o *liteOptions) {
		o.logger = logger
	}
}

// WithStudySource sets the study data source, replacing the HTTP client
// built from the configuration.
func WithStudySource(source domain.StudyDataSource) LiteServerOption {
	return func(o *liteOptions) {
		o.source = source
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *config.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	var o liteOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = config.NewLogger(cfg.LoggingConfig())
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cache, err := service.NewAnalysisCache(cfg.CacheConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis cache: %w", err)
	}

	store := o.store
	if store == nil {
		sqlite, err := overrides.NewSQLiteStore(cfg.OverridesDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create override store: %w", err)
		}
		store = sqlite
	}

	source := o.source
	if source == nil {
		if sdCfg, ok := cfg.StudyDataConfig(); ok {
			client, err := studydata.NewClient(sdCfg, logger)
			if err != nil {
				store.Close()
				return nil, fmt.Errorf("failed to create study data client: %w", err)
			}
			source = client
		}
	}

	analyzer := service.NewAnalyzer(logger, domain.DefaultAnalysisConfig())
	studies := service.NewStudyService(logger, analyzer, service.StudyServiceDeps{
		Source:    source,
		Overrides: store,
		Cache:     cache,
	})

	server := &LiteServer{
		Server: NewServer(studies, logger,
			WithImplementation(defaultName+"-lite", defaultVersion),
			WithOverrideArchive(store, cfg.ExportDir()),
		),
		config: cfg,
		store:  store,
		cache:  cache,
	}

	logger.WithFields(logrus.Fields{
		"data_dir":    cfg.DataDir,
		"study_data":  source != nil,
		"cache_items": cfg.CacheMaxItems,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Run serves over the configured transport until ctx is done.
func (s *LiteServer) Run(ctx context.Context) error {
	if s.config.Transport == "http" {
		return s.StartHTTP(ctx, fmt.Sprintf(":%d", s.config.HTTPPort))
	}
	return s.Start(ctx)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if err := s.cache.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close analysis cache")
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("failed to close override store: %w", err)
	}
	return nil
}

// Store returns the override store for external access.
func (s *LiteServer) Store() overrides.Store {
	return s.store
}
