package config

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// NewLogger builds a logrus logger from the logging section. Unknown levels
// fall back to info; any format other than "text" logs JSON.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}
