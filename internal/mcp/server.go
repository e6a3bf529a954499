// Package mcp exposes the study analysis pipeline as Model Context Protocol
// tools over stdio or streamable HTTP.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/overrides"
	"github.com/tox-signal-mcp-server/internal/service"
)

const (
	defaultName    = "tox-signal-mcp-server"
	defaultVersion = "v1.0.0"
)

// Server represents the MCP server wrapping a StudyService
type Server struct {
	studies   *service.StudyService
	archive   overrides.Store
	exportDir string
	timeout   time.Duration
	info      *mcp.Implementation
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithImplementation sets the name and version reported to clients.
func WithImplementation(name, version string) Option {
	return func(s *Server) {
		if name != "" {
			s.info.Name = name
		}
		if version != "" {
			s.info.Version = version
		}
	}
}

// WithOverrideArchive enables the export_overrides and import_overrides
// tools. Exports are written into exportDir.
func WithOverrideArchive(store overrides.Store, exportDir string) Option {
	return func(s *Server) {
		s.archive = store
		s.exportDir = exportDir
	}
}

// WithRequestTimeout bounds every tool call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// NewServer creates a new MCP server instance and registers its tools
func NewServer(studies *service.StudyService, logger *logrus.Logger, opts ...Option) *Server {
	s := &Server{
		studies: studies,
		info:    &mcp.Implementation{Name: defaultName, Version: defaultVersion},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = mcp.NewServer(s.info, nil)
	s.registerTools()
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Start runs the server over stdio until ctx is done or the client
// disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"name":      s.info.Name,
		"version":   s.info.Version,
		"transport": "stdio",
	}).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// HTTPHandler serves the tools over the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)
}

// StartHTTP serves HTTPHandler on addr and shuts down gracefully when ctx
// is cancelled.
func (s *Server) StartHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"name":      s.info.Name,
			"addr":      addr,
			"transport": "http",
		}).Info("Starting MCP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("MCP HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("MCP HTTP server shutdown failed: %w", err)
	}
	s.logger.Info("MCP HTTP server stopped")
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_study",
		Description: "Run the cross-domain interpretation pipeline on a study, fetched by study_id or supplied inline as a JSON or YAML bundle.",
	}, s.handleAnalyzeStudy)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "check_magnitude_floor",
		Description: "Check whether one endpoint's effect clears the biological magnitude floor, optionally under body-weight confounding.",
	}, s.handleCheckMagnitudeFloor)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_lab_rules",
		Description: "List the clinical lab rule catalog, optionally filtered by category (liver, graded, governance).",
	}, s.handleListLabRules)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_syndromes",
		Description: "List the cross-domain syndrome definitions and their terms.",
	}, s.handleListSyndromes)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_normalization_override",
		Description: "Force the organ-weight normalization mode for an organ of a study, optionally at one dose level.",
	}, s.handleSetOverride)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_normalization_overrides",
		Description: "List the reviewer normalization overrides stored for a study.",
	}, s.handleListOverrides)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_normalization_override",
		Description: "Remove a stored normalization override.",
	}, s.handleDeleteOverride)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_analysis_runs",
		Description: "List recorded analysis runs of a study, newest first.",
	}, s.handleListRuns)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_analysis_run",
		Description: "Fetch one recorded analysis run including its full result.",
	}, s.handleGetRun)

	count := 9
	if s.archive != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "export_overrides",
			Description: "Export every stored normalization override to a JSON file for backup.",
		}, s.handleExportOverrides)
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "import_overrides",
			Description: "Import normalization overrides from a JSON backup file. Existing overrides are kept.",
		}, s.handleImportOverrides)
		count += 2
	}

	s.logger.WithField("tool_count", count).Info("Successfully registered all tools")
}

// callContext applies the per-call timeout.
func (s *Server) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
