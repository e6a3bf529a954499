package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tox-signal-mcp-server/internal/app"
	"github.com/tox-signal-mcp-server/internal/config"
	"github.com/tox-signal-mcp-server/internal/mcp"
	"github.com/tox-signal-mcp-server/internal/setup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI("full", os.Stdin, os.Stdout).Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer stack.Close()

	opts := []mcp.Option{
		mcp.WithImplementation(cfg.MCP.ServerName, cfg.MCP.ServerVersion),
		mcp.WithRequestTimeout(cfg.MCP.RequestTimeout),
	}
	if stack.Overrides != nil {
		opts = append(opts, mcp.WithOverrideArchive(stack.Overrides, cfg.Overrides.ExportDir))
	}
	server := mcp.NewServer(stack.Studies, logger, opts...)

	if len(os.Args) > 1 && os.Args[1] == "http" {
		err = server.StartHTTP(ctx, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	} else {
		err = server.Start(ctx)
	}
	if err != nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("MCP server stopped")
}
