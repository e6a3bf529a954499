package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/labrules"
	"github.com/tox-signal-mcp-server/internal/service"
	"github.com/tox-signal-mcp-server/internal/studyfile"
	"github.com/tox-signal-mcp-server/internal/syndrome"
)

// AnalyzeStudyParams defines parameters for the analyze_study tool
type AnalyzeStudyParams struct {
	StudyID string `json:"study_id,omitempty" jsonschema:"identifier of a study held by the study data service"`
	Study   string `json:"study,omitempty" jsonschema:"inline study bundle as a JSON or YAML document"`
	Detail  string `json:"detail,omitempty" jsonschema:"summary (default) or full"`
}

// CheckMagnitudeFloorParams defines parameters for the check_magnitude_floor tool
type CheckMagnitudeFloorParams struct {
	EndpointLabel string   `json:"endpoint_label" jsonschema:"display label of the endpoint"`
	Domain        string   `json:"domain" jsonschema:"domain code such as LB, OM or BW"`
	Specimen      string   `json:"specimen,omitempty" jsonschema:"organ of an OM endpoint"`
	EffectSize    *float64 `json:"effect_size,omitempty" jsonschema:"largest Hedges' g of the endpoint"`
	FoldChange    *float64 `json:"fold_change,omitempty" jsonschema:"largest fold change versus control"`
	DoseLevel     int      `json:"dose_level,omitempty" jsonschema:"dose level of the peak effect"`
	BodyWeightG   *float64 `json:"body_weight_g,omitempty" jsonschema:"peak body-weight g at that dose level"`
	DirectG       *float64 `json:"direct_g,omitempty" jsonschema:"covariate-adjusted direct effect g when available"`
}

// ListLabRulesParams defines parameters for the list_lab_rules tool
type ListLabRulesParams struct {
	Category string `json:"category,omitempty" jsonschema:"liver, graded or governance"`
}

// ListSyndromesParams defines parameters for the list_syndromes tool
type ListSyndromesParams struct{}

// SetOverrideParams defines parameters for the set_normalization_override tool
type SetOverrideParams struct {
	StudyID   string `json:"study_id" jsonschema:"study the override belongs to"`
	Organ     string `json:"organ" jsonschema:"organ name, case-insensitive"`
	Mode      string `json:"mode" jsonschema:"absolute, body_weight, brain_weight or ancova"`
	DoseLevel int    `json:"dose_level,omitempty" jsonschema:"dose level, 0 for every level"`
	Reviewer  string `json:"reviewer,omitempty"`
	Rationale string `json:"rationale,omitempty"`
}

// StudyParams identifies a study.
type StudyParams struct {
	StudyID string `json:"study_id"`
}

// DeleteOverrideParams defines parameters for the delete_normalization_override tool
type DeleteOverrideParams struct {
	StudyID   string `json:"study_id"`
	Organ     string `json:"organ"`
	DoseLevel int    `json:"dose_level,omitempty"`
}

// ListRunsParams defines parameters for the list_analysis_runs tool
type ListRunsParams struct {
	StudyID string `json:"study_id"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum runs to return, default 20"`
}

// GetRunParams defines parameters for the get_analysis_run tool
type GetRunParams struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleAnalyzeStudy(ctx context.Context, req *mcp.CallToolRequest, params AnalyzeStudyParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	detail := strings.ToLower(strings.TrimSpace(params.Detail))
	if detail != "" && detail != "summary" && detail != "full" {
		return s.createErrorResult("Invalid parameter", fmt.Errorf("detail must be summary or full, got %q", params.Detail)), nil, nil
	}

	var (
		analysis *domain.StudyAnalysis
		err      error
	)
	switch {
	case strings.TrimSpace(params.Study) != "":
		input, decodeErr := studyfile.Decode([]byte(params.Study))
		if decodeErr != nil {
			return s.createErrorResult("Invalid study bundle", decodeErr), nil, nil
		}
		if params.StudyID != "" && params.StudyID != input.StudyID {
			return s.createErrorResult("Invalid parameter",
				fmt.Errorf("study_id %q does not match bundle study %q", params.StudyID, input.StudyID)), nil, nil
		}
		analysis, err = s.studies.AnalyzeInput(ctx, input)
	case params.StudyID != "":
		analysis, err = s.studies.AnalyzeStudy(ctx, params.StudyID)
	default:
		return s.createErrorResult("Missing required parameter", errors.New("study_id or study is required")), nil, nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("study_id", params.StudyID).Error("Study analysis failed")
		return s.createErrorResult("Analysis failed", err), nil, nil
	}

	digest := service.Digest(analysis)
	summary := digest.String()
	if detail == "full" {
		return jsonResult(summary, analysis)
	}
	return jsonResult(summary, digest)
}

func (s *Server) handleCheckMagnitudeFloor(ctx context.Context, req *mcp.CallToolRequest, params CheckMagnitudeFloorParams) (*mcp.CallToolResult, any, error) {
	if params.EndpointLabel == "" {
		return s.createErrorResult("Missing required parameter", errors.New("endpoint_label is required")), nil, nil
	}
	d, err := domain.ParseDomain(params.Domain)
	if err != nil {
		return s.createErrorResult("Invalid parameter", err), nil, nil
	}

	ep := domain.EndpointSummary{
		EndpointLabel: params.EndpointLabel,
		Domain:        d,
		Specimen:      params.Specimen,
		MaxEffectSize: params.EffectSize,
		MaxFoldChange: params.FoldChange,
		PeakDoseLevel: params.DoseLevel,
	}

	var contexts []domain.NormalizationContext
	if params.BodyWeightG != nil && d == domain.DomainOM && params.Specimen != "" {
		contexts = append(contexts, s.floorContext(params))
	}

	check := s.studies.Analyzer().CheckMagnitudeFloor(ep, contexts)
	summary := fmt.Sprintf("%s: magnitude floor passed", params.EndpointLabel)
	if !check.Passed {
		summary = fmt.Sprintf("%s: %s", params.EndpointLabel, check.Violation)
	}
	return jsonResult(summary, check)
}

// floorContext builds the confounding context a study would have produced
// for the supplied body-weight effect.
func (s *Server) floorContext(params CheckMagnitudeFloorParams) domain.NormalizationContext {
	tier := s.studies.Analyzer().Policy().AssignTier(*params.BodyWeightG)
	ctx := domain.NormalizationContext{
		Organ:       analyte.OrganKey(params.Specimen),
		DoseLevel:   params.DoseLevel,
		Tier:        tier,
		BodyWeightG: *params.BodyWeightG,
		Mode:        domain.ModeBodyWeight,
	}
	switch {
	case params.DirectG != nil:
		ctx.Mode = domain.ModeANCOVA
		ctx.Decomposition = &domain.EffectDecomposition{
			Organ:     ctx.Organ,
			DoseLevel: params.DoseLevel,
			DirectG:   *params.DirectG,
		}
	case tier == 1:
		ctx.Mode = domain.ModeAbsolute
	}
	return ctx
}

func (s *Server) handleListLabRules(ctx context.Context, req *mcp.CallToolRequest, params ListLabRulesParams) (*mcp.CallToolResult, any, error) {
	rules := labrules.Catalog()
	if params.Category != "" {
		category := domain.RuleCategory(strings.ToLower(params.Category))
		switch category {
		case domain.CategoryLiver, domain.CategoryGraded, domain.CategoryGovernance:
		default:
			return s.createErrorResult("Invalid parameter", fmt.Errorf("unknown category %q", params.Category)), nil, nil
		}
		filtered := rules[:0]
		for _, r := range rules {
			if r.Category == category {
				filtered = append(filtered, r)
			}
		}
		rules = filtered
	}
	return jsonResult(fmt.Sprintf("%d lab rules", len(rules)), rules)
}

func (s *Server) handleListSyndromes(ctx context.Context, req *mcp.CallToolRequest, params ListSyndromesParams) (*mcp.CallToolResult, any, error) {
	defs := syndrome.Catalog()
	return jsonResult(fmt.Sprintf("%d syndrome definitions", len(defs)), defs)
}

func (s *Server) handleSetOverride(ctx context.Context, req *mcp.CallToolRequest, params SetOverrideParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	override := domain.NormalizationOverride{
		Organ:     params.Organ,
		DoseLevel: params.DoseLevel,
		Mode:      domain.NormalizationMode(strings.ToLower(params.Mode)),
		Reviewer:  params.Reviewer,
		Rationale: params.Rationale,
	}
	if err := s.studies.SetOverride(ctx, params.StudyID, override); err != nil {
		return s.createErrorResult("Failed to save override", err), nil, nil
	}

	override.Organ = analyte.OrganKey(override.Organ)
	return jsonResult(fmt.Sprintf("Override saved: %s uses %s for study %s", override.Organ, override.Mode, params.StudyID), override)
}

func (s *Server) handleListOverrides(ctx context.Context, req *mcp.CallToolRequest, params StudyParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	list, err := s.studies.ListOverrides(ctx, params.StudyID)
	if err != nil {
		return s.createErrorResult("Failed to list overrides", err), nil, nil
	}
	if list == nil {
		list = []domain.NormalizationOverride{}
	}
	return jsonResult(fmt.Sprintf("%d overrides for study %s", len(list), params.StudyID), list)
}

func (s *Server) handleDeleteOverride(ctx context.Context, req *mcp.CallToolRequest, params DeleteOverrideParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.studies.DeleteOverride(ctx, params.StudyID, params.Organ, params.DoseLevel); err != nil {
		return s.createErrorResult("Failed to delete override", err), nil, nil
	}
	return textResult(fmt.Sprintf("Override removed: %s at dose level %d for study %s",
		analyte.OrganKey(params.Organ), params.DoseLevel, params.StudyID)), nil, nil
}

func (s *Server) handleListRuns(ctx context.Context, req *mcp.CallToolRequest, params ListRunsParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if params.StudyID == "" {
		return s.createErrorResult("Missing required parameter", domain.ErrMissingStudyID), nil, nil
	}
	if params.Limit < 0 {
		return s.createErrorResult("Invalid parameter", errors.New("limit must not be negative")), nil, nil
	}
	runs, err := s.studies.ListRuns(ctx, params.StudyID, params.Limit)
	if err != nil {
		return s.createErrorResult("Failed to list runs", err), nil, nil
	}
	if runs == nil {
		runs = []*domain.AnalysisRun{}
	}
	return jsonResult(fmt.Sprintf("%d analysis runs for study %s", len(runs), params.StudyID), runs)
}

func (s *Server) handleGetRun(ctx context.Context, req *mcp.CallToolRequest, params GetRunParams) (*mcp.CallToolResult, any, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if params.RunID == "" {
		return s.createErrorResult("Missing required parameter", errors.New("run_id is required")), nil, nil
	}
	run, err := s.studies.GetRun(ctx, params.RunID)
	if err != nil {
		return s.createErrorResult("Failed to get run", err), nil, nil
	}
	return jsonResult(fmt.Sprintf("Run %s of study %s", run.ID, run.StudyID), run)
}

// jsonResult returns a summary line followed by the JSON payload.
func jsonResult(summary string, payload any) (*mcp.CallToolResult, any, error) {
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(body)},
		},
	}, nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
