package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// ExportOverridesParams defines parameters for the export_overrides tool
type ExportOverridesParams struct{}

// ExportOverridesResult defines the result of export_overrides
type ExportOverridesResult struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path"`
	Count    int64  `json:"count"`
	Message  string `json:"message"`
}

// ImportOverridesParams defines parameters for the import_overrides tool
type ImportOverridesParams struct {
	FilePath string `json:"file_path" jsonschema:"path of a file written by export_overrides"`
}

// ImportOverridesResult defines the result of import_overrides
type ImportOverridesResult struct {
	Success  bool   `json:"success"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Message  string `json:"message"`
}

func (s *Server) handleExportOverrides(ctx context.Context, req *mcp.CallToolRequest, params ExportOverridesParams) (*mcp.CallToolResult, any, error) {
	if err := os.MkdirAll(s.exportDir, 0755); err != nil {
		return s.createErrorResult("Failed to create export directory", err), nil, nil
	}

	filename := fmt.Sprintf("overrides_export_%s.json", time.Now().UTC().Format("20060102_150405"))
	filePath := filepath.Join(s.exportDir, filename)

	file, err := os.Create(filePath)
	if err != nil {
		return s.createErrorResult("Failed to create export file", err), nil, nil
	}
	defer file.Close()

	if err := s.archive.ExportJSON(ctx, file); err != nil {
		s.logger.WithError(err).Error("Failed to export overrides")
		return s.createErrorResult("Failed to export overrides", err), nil, nil
	}

	count, err := s.archive.Count(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to count exported overrides")
	}

	s.logger.WithFields(logrus.Fields{
		"file_path": filePath,
		"count":     count,
	}).Info("Exported normalization overrides")

	result := ExportOverridesResult{
		Success:  true,
		FilePath: filePath,
		Count:    count,
		Message:  fmt.Sprintf("Exported %d overrides to %s", count, filePath),
	}
	return jsonResult(result.Message, result)
}

func (s *Server) handleImportOverrides(ctx context.Context, req *mcp.CallToolRequest, params ImportOverridesParams) (*mcp.CallToolResult, any, error) {
	if params.FilePath == "" {
		return s.createErrorResult("Missing required parameter", errors.New("file_path is required")), nil, nil
	}

	file, err := os.Open(params.FilePath)
	if err != nil {
		return s.createErrorResult("Failed to open import file", err), nil, nil
	}
	defer file.Close()

	imported, skipped, err := s.archive.ImportJSON(ctx, file)
	if err != nil {
		s.logger.WithError(err).Error("Failed to import overrides")
		return s.createErrorResult("Failed to import overrides", err), nil, nil
	}
	if imported > 0 {
		s.invalidateArchived(ctx)
	}

	result := ImportOverridesResult{
		Success:  true,
		Imported: imported,
		Skipped:  skipped,
		Message:  fmt.Sprintf("Imported %d overrides, skipped %d existing", imported, skipped),
	}
	return jsonResult(result.Message, result)
}

// invalidateArchived drops cached analyses of every study with stored
// overrides.
func (s *Server) invalidateArchived(ctx context.Context) {
	records, err := s.archive.Records(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read overrides after import")
		return
	}
	seen := make(map[string]bool)
	for _, r := range records {
		if seen[r.StudyID] {
			continue
		}
		seen[r.StudyID] = true
		s.studies.InvalidateStudy(ctx, r.StudyID)
	}
}
