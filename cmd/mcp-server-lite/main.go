// Package main provides the lightweight entry point for the tox signal MCP server.
// This version requires no external databases - uses in-memory caching and SQLite.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tox-signal-mcp-server/internal/config"
	"github.com/tox-signal-mcp-server/internal/mcp"
	"github.com/tox-signal-mcp-server/internal/setup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		cli := setup.NewCLI("lite", os.Stdin, os.Stdout)
		if err := cli.Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("Failed to load environment file: %v", err)
	}

	// Load lightweight configuration
	cfg := config.LoadLiteConfig()

	logger := config.NewLogger(cfg.LoggingConfig())

	// Create lite MCP server
	server, err := mcp.NewLiteServer(cfg, mcp.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithField("transport", cfg.Transport).WithField("data_dir", cfg.DataDir).Info("Starting tox signal MCP server (lite)")
	if err := server.Run(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("MCP server (lite) stopped")
}
