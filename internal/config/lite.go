// Package config provides configuration management for the servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the override database and exports

	// Cache settings
	CacheMaxItems int           // Maximum analyses in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Study data service
	StudyDataURL    string // Optional: base URL of the analysis collaborator
	StudyDataAPIKey string // Optional: API key for the analysis collaborator

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".toxsig")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 256,
		CacheTTL:      15 * time.Minute,
		Transport:     "stdio",
		HTTPPort:      8080,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("TOXSIG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("TOXSIG_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("TOXSIG_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.StudyDataURL = os.Getenv("TOXSIG_STUDY_DATA_URL")
	cfg.StudyDataAPIKey = os.Getenv("TOXSIG_STUDY_DATA_API_KEY")

	if v := os.Getenv("TOXSIG_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("TOXSIG_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("TOXSIG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TOXSIG_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// OverridesDBPath returns the path to the override SQLite database.
func (c *LiteConfig) OverridesDBPath() string {
	return filepath.Join(c.DataDir, "overrides.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// CacheConfig returns the in-memory cache settings. Lite mode never uses
// Redis.
func (c *LiteConfig) CacheConfig() domain.CacheConfig {
	return domain.CacheConfig{MaxEntries: c.CacheMaxItems, DefaultTTL: c.CacheTTL}
}

// StudyDataConfig returns the data-service client settings, or false when
// no collaborator URL is configured.
func (c *LiteConfig) StudyDataConfig() (domain.StudyDataConfig, bool) {
	if c.StudyDataURL == "" {
		return domain.StudyDataConfig{}, false
	}
	return domain.StudyDataConfig{
		BaseURL:    c.StudyDataURL,
		APIKey:     c.StudyDataAPIKey,
		Timeout:    30 * time.Second,
		RateLimit:  10,
		RetryCount: 3,
	}, true
}

// LoggingConfig returns the logging section.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat}
}

// LoadEnvFile loads KEY=value lines from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
