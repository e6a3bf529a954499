package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// EnvPrefix is the prefix of every environment variable the manager reads,
// e.g. TOXSIG_DATABASE_HOST.
const EnvPrefix = "TOXSIG"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager that searches the default
// locations for config.yaml.
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile creates a manager reading the given YAML file. An empty
// path searches ., ./config and /etc/tox-signal-mcp-server/.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from file, environment and defaults
func (m *Manager) loadConfig() error {
	v := viper.New()
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tox-signal-mcp-server/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "toxsig")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")

	// Study data service defaults
	v.SetDefault("study_data.base_url", "http://localhost:8000/api/")
	v.SetDefault("study_data.timeout", "30s")
	v.SetDefault("study_data.rate_limit", 10)
	v.SetDefault("study_data.retry_count", 3)

	// Cache defaults
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "15m")
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("cache.pool_size", 10)

	// Override storage defaults
	v.SetDefault("overrides.backend", "postgres")
	v.SetDefault("overrides.sqlite_path", "overrides.db")
	v.SetDefault("overrides.export_dir", "exports")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// MCP defaults
	v.SetDefault("mcp.server_name", "tox-signal-mcp-server")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.request_timeout", "60s")

	// Analysis policy defaults
	def := domain.DefaultAnalysisConfig()
	v.SetDefault("analysis.tier_thresholds", def.TierThresholds)
	v.SetDefault("analysis.organ_weight_min_g", def.OrganWeightMinG)
	v.SetDefault("analysis.organ_weight_min_fc", def.OrganWeightMinFC)
	v.SetDefault("analysis.lab_min_g", def.LabMinG)
	v.SetDefault("analysis.lab_min_fc", def.LabMinFC)
	v.SetDefault("analysis.body_weight_min_g", def.BodyWeightMinG)
	v.SetDefault("analysis.brain_unaffected_g", def.BrainUnaffectedG)
	v.SetDefault("analysis.secondary_bw_min_tier", def.SecondaryBWMinTier)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetAnalysisConfig returns the analysis policy
func (m *Manager) GetAnalysisConfig() *domain.AnalysisConfig {
	return &m.config.Analysis
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Overrides.Backend {
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	case "sqlite":
		if config.Overrides.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite override backend")
		}
	case "none":
	default:
		return fmt.Errorf("invalid override backend: %s", config.Overrides.Backend)
	}

	if config.StudyData.BaseURL == "" {
		return fmt.Errorf("study data base URL is required")
	}

	a := config.Analysis
	if len(a.TierThresholds) != 3 {
		return fmt.Errorf("analysis.tier_thresholds needs 3 values, got %d", len(a.TierThresholds))
	}
	for i, t := range a.TierThresholds {
		if t <= 0 || (i > 0 && t <= a.TierThresholds[i-1]) {
			return fmt.Errorf("analysis.tier_thresholds must be positive and ascending: %v", a.TierThresholds)
		}
	}
	if a.SecondaryBWMinTier < 2 || a.SecondaryBWMinTier > 4 {
		return fmt.Errorf("analysis.secondary_bw_min_tier must be in 2..4, got %d", a.SecondaryBWMinTier)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
