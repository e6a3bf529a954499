package domain

import (
	"context"
)

// StudyDataSource fetches the statistical bundle of a study from the external
// analysis service
type StudyDataSource interface {
	FetchStudy(ctx context.Context, studyID string) (*StudyInput, error)
}

// StudyAnalyzer runs the interpretation pipeline for one study
type StudyAnalyzer interface {
	Analyze(ctx context.Context, input *StudyInput) (*StudyAnalysis, error)
}

// OverrideStore persists reviewer normalization overrides per study
type OverrideStore interface {
	SaveOverride(ctx context.Context, studyID string, override NormalizationOverride) error
	ListOverrides(ctx context.Context, studyID string) ([]NormalizationOverride, error)
	DeleteOverride(ctx context.Context, studyID, organ string, doseLevel int) error
	Close() error
}

// AnalysisRunRepository defines the interface for analysis history persistence
type AnalysisRunRepository interface {
	SaveRun(ctx context.Context, run *AnalysisRun) error
	GetRun(ctx context.Context, id string) (*AnalysisRun, error)
	ListRuns(ctx context.Context, studyID string, limit int) ([]*AnalysisRun, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetAnalysisConfig() *AnalysisConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
