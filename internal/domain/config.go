package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	StudyData StudyDataConfig `mapstructure:"study_data"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Overrides OverridesConfig `mapstructure:"overrides"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// StudyDataConfig configures the client of the external analysis service
type StudyDataConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  int           `mapstructure:"rate_limit"`
	RetryCount int           `mapstructure:"retry_count"`
}

// CacheConfig represents analysis cache configuration
type CacheConfig struct {
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	PoolSize   int           `mapstructure:"pool_size"`
}

// OverridesConfig selects where reviewer overrides are stored
type OverridesConfig struct {
	Backend    string `mapstructure:"backend"` // "sqlite", "postgres", "none"
	SQLitePath string `mapstructure:"sqlite_path"`
	ExportDir  string `mapstructure:"export_dir"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName     string        `mapstructure:"server_name"`
	ServerVersion  string        `mapstructure:"server_version"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AnalysisConfig holds the numeric policy of the interpretation pipeline.
// TierThresholds are the |body-weight g| cut points between tiers 1|2, 2|3
// and 3|4.
type AnalysisConfig struct {
	TierThresholds     []float64 `mapstructure:"tier_thresholds"`
	OrganWeightMinG    float64   `mapstructure:"organ_weight_min_g"`
	OrganWeightMinFC   float64   `mapstructure:"organ_weight_min_fc"`
	LabMinG            float64   `mapstructure:"lab_min_g"`
	LabMinFC           float64   `mapstructure:"lab_min_fc"`
	BodyWeightMinG     float64   `mapstructure:"body_weight_min_g"`
	BrainUnaffectedG   float64   `mapstructure:"brain_unaffected_g"`
	SecondaryBWMinTier int       `mapstructure:"secondary_bw_min_tier"`
}

// DefaultAnalysisConfig returns the built-in analysis policy.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		TierThresholds:     []float64{0.5, 1.0, 2.0},
		OrganWeightMinG:    0.8,
		OrganWeightMinFC:   0.10,
		LabMinG:            0.5,
		LabMinFC:           0.10,
		BodyWeightMinG:     0.5,
		BrainUnaffectedG:   0.8,
		SecondaryBWMinTier: 3,
	}
}
