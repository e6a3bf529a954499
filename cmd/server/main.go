package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tox-signal-mcp-server/internal/api"
	"github.com/tox-signal-mcp-server/internal/app"
	"github.com/tox-signal-mcp-server/internal/config"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("Failed to load environment file: %v", err)
	}

	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer stack.Close()

	server := api.NewServer(configManager, stack.Studies, logger, stack.HealthChecks()...)

	logger.WithField("addr", cfg.Server.Host).WithField("port", cfg.Server.Port).Info("Starting tox signal API server")
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
