package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/analyte"
	"github.com/tox-signal-mcp-server/internal/domain"
)

var (
	// ErrNoDataSource is returned when a study is requested by id but no
	// external data source is configured.
	ErrNoDataSource = errors.New("no study data source configured")
	// ErrOverridesDisabled is returned by override operations when no
	// override store is configured.
	ErrOverridesDisabled = errors.New("override storage is disabled")
)

// StudyService orchestrates fetching, reviewer overrides, caching and run
// history around the pure Analyzer. Every collaborator except the analyzer
// is optional.
type StudyService struct {
	logger    *logrus.Logger
	analyzer  *Analyzer
	source    domain.StudyDataSource
	overrides domain.OverrideStore
	runs      domain.AnalysisRunRepository
	cache     *AnalysisCache
}

// StudyServiceDeps lists the optional collaborators of a StudyService.
type StudyServiceDeps struct {
	Source    domain.StudyDataSource
	Overrides domain.OverrideStore
	Runs      domain.AnalysisRunRepository
	Cache     *AnalysisCache
}

// NewStudyService creates a new study service
func NewStudyService(logger *logrus.Logger, analyzer *Analyzer, deps StudyServiceDeps) *StudyService {
	return &StudyService{
		logger:    logger,
		analyzer:  analyzer,
		source:    deps.Source,
		overrides: deps.Overrides,
		runs:      deps.Runs,
		cache:     deps.Cache,
	}
}

// Analyzer returns the underlying pipeline.
func (s *StudyService) Analyzer() *Analyzer {
	return s.analyzer
}

// AnalyzeStudy fetches a study bundle from the data source and analyzes it.
func (s *StudyService) AnalyzeStudy(ctx context.Context, studyID string) (*domain.StudyAnalysis, error) {
	if strings.TrimSpace(studyID) == "" {
		return nil, domain.NewValidationError("study_id", domain.ErrMissingStudyID.Error(), studyID)
	}
	if s.source == nil {
		return nil, ErrNoDataSource
	}
	input, err := s.source.FetchStudy(ctx, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch study %s: %w", studyID, err)
	}
	if input.StudyID == "" {
		input.StudyID = studyID
	}
	return s.AnalyzeInput(ctx, input)
}

// AnalyzeInput analyzes a supplied bundle after merging stored reviewer
// overrides into it. The caller's input is not modified.
func (s *StudyService) AnalyzeInput(ctx context.Context, input *domain.StudyInput) (*domain.StudyAnalysis, error) {
	if input == nil {
		return nil, domain.NewValidationError("input", "study input is required", nil)
	}
	startTime := time.Now()

	merged, err := s.withStoredOverrides(ctx, input)
	if err != nil {
		return nil, err
	}

	digest, err := InputDigest(merged)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, merged.StudyID, digest); ok {
			s.logger.WithFields(logrus.Fields{
				"study_id": merged.StudyID,
				"digest":   digest[:12],
			}).Debug("Serving cached study analysis")
			return cached, nil
		}
	}

	analysis, err := s.analyzer.Analyze(ctx, merged)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, analysis)
	}
	s.recordRun(ctx, analysis, time.Since(startTime))
	return analysis, nil
}

// withStoredOverrides returns a shallow copy of input whose overrides list
// starts with the stored overrides. Bundled overrides for the same organ and
// dose level are dropped.
func (s *StudyService) withStoredOverrides(ctx context.Context, input *domain.StudyInput) (*domain.StudyInput, error) {
	if s.overrides == nil || input.StudyID == "" {
		return input, nil
	}
	stored, err := s.overrides.ListOverrides(ctx, input.StudyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides for study %s: %w", input.StudyID, err)
	}
	if len(stored) == 0 {
		return input, nil
	}

	type key struct {
		organ string
		dose  int
	}
	seen := make(map[key]bool, len(stored))
	merged := make([]domain.NormalizationOverride, 0, len(stored)+len(input.Overrides))
	for _, o := range stored {
		seen[key{analyte.OrganKey(o.Organ), o.DoseLevel}] = true
		merged = append(merged, o)
	}
	for _, o := range input.Overrides {
		if !seen[key{analyte.OrganKey(o.Organ), o.DoseLevel}] {
			merged = append(merged, o)
		}
	}

	clone := *input
	clone.Overrides = merged
	return &clone, nil
}

func (s *StudyService) recordRun(ctx context.Context, analysis *domain.StudyAnalysis, elapsed time.Duration) {
	if s.runs == nil {
		return
	}
	run := &domain.AnalysisRun{
		ID:               uuid.New().String(),
		StudyID:          analysis.StudyID,
		InputDigest:      analysis.InputDigest,
		EndpointCount:    len(analysis.Endpoints),
		SyndromeCount:    len(analysis.Syndromes),
		LabMatchCount:    len(analysis.LabMatches),
		ProcessingTimeMs: int(elapsed.Milliseconds()),
		Result:           analysis,
		CreatedAt:        analysis.AnalyzedAt,
	}
	if err := s.runs.SaveRun(ctx, run); err != nil {
		s.logger.WithError(err).WithField("study_id", analysis.StudyID).Warn("Failed to record analysis run")
	}
}

// SetOverride stores a reviewer override and drops cached analyses of the
// study.
func (s *StudyService) SetOverride(ctx context.Context, studyID string, override domain.NormalizationOverride) error {
	if s.overrides == nil {
		return ErrOverridesDisabled
	}
	if strings.TrimSpace(studyID) == "" {
		return domain.NewValidationError("study_id", domain.ErrMissingStudyID.Error(), studyID)
	}
	if strings.TrimSpace(override.Organ) == "" {
		return domain.NewValidationError("organ", "organ is required", override.Organ)
	}
	if !override.Mode.IsValid() {
		return domain.NewValidationError("mode", domain.ErrInvalidMode.Error(), override.Mode)
	}
	if override.DoseLevel < 0 {
		return domain.NewValidationError("dose_level", "must not be negative", override.DoseLevel)
	}
	override.Organ = analyte.OrganKey(override.Organ)

	if err := s.overrides.SaveOverride(ctx, studyID, override); err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	s.invalidate(ctx, studyID)

	s.logger.WithFields(logrus.Fields{
		"study_id":   studyID,
		"organ":      override.Organ,
		"dose_level": override.DoseLevel,
		"mode":       override.Mode,
		"reviewer":   override.Reviewer,
	}).Info("Normalization override saved")
	return nil
}

// ListOverrides returns the stored overrides of a study.
func (s *StudyService) ListOverrides(ctx context.Context, studyID string) ([]domain.NormalizationOverride, error) {
	if s.overrides == nil {
		return nil, ErrOverridesDisabled
	}
	return s.overrides.ListOverrides(ctx, studyID)
}

// DeleteOverride removes a stored override.
func (s *StudyService) DeleteOverride(ctx context.Context, studyID, organ string, doseLevel int) error {
	if s.overrides == nil {
		return ErrOverridesDisabled
	}
	if err := s.overrides.DeleteOverride(ctx, studyID, analyte.OrganKey(organ), doseLevel); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	s.invalidate(ctx, studyID)
	return nil
}

// ListRuns returns recent analysis runs of a study, newest first.
func (s *StudyService) ListRuns(ctx context.Context, studyID string, limit int) ([]*domain.AnalysisRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	return s.runs.ListRuns(ctx, studyID, limit)
}

// GetRun returns one analysis run by id.
func (s *StudyService) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	if s.runs == nil {
		return nil, domain.ErrNotFound
	}
	return s.runs.GetRun(ctx, id)
}

// CacheStats returns the analysis cache counters, or zero values when no
// cache is configured.
func (s *StudyService) CacheStats() CacheStats {
	if s.cache == nil {
		return CacheStats{}
	}
	return s.cache.Stats()
}

// InvalidateStudy drops cached analyses of a study whose stored overrides
// changed outside the service.
func (s *StudyService) InvalidateStudy(ctx context.Context, studyID string) {
	s.invalidate(ctx, studyID)
}

func (s *StudyService) invalidate(ctx context.Context, studyID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, studyID); err != nil {
		s.logger.WithError(err).WithField("study_id", studyID).Warn("Failed to invalidate cached analyses")
	}
}
