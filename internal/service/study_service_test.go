package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tox-signal-mcp-server/internal/domain"
)

type MockStudyDataSource struct {
	mock.Mock
}

func (m *MockStudyDataSource) FetchStudy(ctx context.Context, studyID string) (*domain.StudyInput, error) {
	args := m.Called(ctx, studyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StudyInput), args.Error(1)
}

type MockOverrideStore struct {
	mock.Mock
}

func (m *MockOverrideStore) SaveOverride(ctx context.Context, studyID string, override domain.NormalizationOverride) error {
	return m.Called(ctx, studyID, override).Error(0)
}

func (m *MockOverrideStore) ListOverrides(ctx context.Context, studyID string) ([]domain.NormalizationOverride, error) {
	args := m.Called(ctx, studyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.NormalizationOverride), args.Error(1)
}

func (m *MockOverrideStore) DeleteOverride(ctx context.Context, studyID, organ string, doseLevel int) error {
	return m.Called(ctx, studyID, organ, doseLevel).Error(0)
}

func (m *MockOverrideStore) Close() error {
	return m.Called().Error(0)
}

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) SaveRun(ctx context.Context, run *domain.AnalysisRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunRepository) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AnalysisRun), args.Error(1)
}

func (m *MockRunRepository) ListRuns(ctx context.Context, studyID string, limit int) ([]*domain.AnalysisRun, error) {
	args := m.Called(ctx, studyID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AnalysisRun), args.Error(1)
}

func newTestService(t *testing.T, deps StudyServiceDeps) *StudyService {
	t.Helper()
	logger, _ := test.NewNullLogger()
	a, _ := newTestAnalyzer()
	return NewStudyService(logger, a, deps)
}

func TestAnalyzeStudyFetchesAndRecordsRun(t *testing.T) {
	source := new(MockStudyDataSource)
	runs := new(MockRunRepository)
	source.On("FetchStudy", mock.Anything, "TOX-001").Return(hepatotoxicStudy(), nil)
	runs.On("SaveRun", mock.Anything, mock.MatchedBy(func(run *domain.AnalysisRun) bool {
		return run.StudyID == "TOX-001" && run.ID != "" && run.SyndromeCount == 1 && run.Result != nil
	})).Return(nil)

	svc := newTestService(t, StudyServiceDeps{Source: source, Runs: runs})
	analysis, err := svc.AnalyzeStudy(context.Background(), "TOX-001")
	require.NoError(t, err)
	assert.Equal(t, "TOX-001", analysis.StudyID)

	source.AssertExpectations(t)
	runs.AssertExpectations(t)
}

func TestAnalyzeStudyErrors(t *testing.T) {
	svc := newTestService(t, StudyServiceDeps{})
	_, err := svc.AnalyzeStudy(context.Background(), "TOX-001")
	assert.ErrorIs(t, err, ErrNoDataSource)

	_, err = svc.AnalyzeStudy(context.Background(), "  ")
	var vErr *domain.ValidationError
	assert.True(t, errors.As(err, &vErr))

	source := new(MockStudyDataSource)
	source.On("FetchStudy", mock.Anything, "MISSING").Return(nil, domain.ErrNotFound)
	svc = newTestService(t, StudyServiceDeps{Source: source})
	_, err = svc.AnalyzeStudy(context.Background(), "MISSING")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunRepositoryFailureDoesNotFailAnalysis(t *testing.T) {
	runs := new(MockRunRepository)
	runs.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	svc := newTestService(t, StudyServiceDeps{Runs: runs})
	_, err := svc.AnalyzeInput(context.Background(), hepatotoxicStudy())
	require.NoError(t, err)
	runs.AssertNumberOfCalls(t, "SaveRun", 1)
}

func TestAnalyzeInputServesFromCache(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cache, err := NewAnalysisCache(domain.CacheConfig{MaxEntries: 8, DefaultTTL: time.Minute}, logger)
	require.NoError(t, err)
	runs := new(MockRunRepository)
	runs.On("SaveRun", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(t, StudyServiceDeps{Cache: cache, Runs: runs})
	first, err := svc.AnalyzeInput(context.Background(), hepatotoxicStudy())
	require.NoError(t, err)
	second, err := svc.AnalyzeInput(context.Background(), hepatotoxicStudy())
	require.NoError(t, err)

	assert.Same(t, first, second)
	runs.AssertNumberOfCalls(t, "SaveRun", 1)
	assert.Equal(t, int64(1), svc.CacheStats().MemoryHits)

	changed := hepatotoxicStudy()
	changed.Findings[0].PValue = f(0.04)
	third, err := svc.AnalyzeInput(context.Background(), changed)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.NotEqual(t, first.InputDigest, third.InputDigest)
}

func TestStoredOverridesTakePrecedence(t *testing.T) {
	store := new(MockOverrideStore)
	store.On("ListOverrides", mock.Anything, "TOX-001").Return([]domain.NormalizationOverride{
		{Organ: "LIVER", Mode: domain.ModeBrainWeight, Reviewer: "stored"},
	}, nil)

	input := hepatotoxicStudy()
	input.Overrides = []domain.NormalizationOverride{
		{Organ: "liver", Mode: domain.ModeBodyWeight, Reviewer: "bundled"},
		{Organ: "BRAIN", Mode: domain.ModeBodyWeight, Reviewer: "bundled"},
	}

	svc := newTestService(t, StudyServiceDeps{Overrides: store})
	analysis, err := svc.AnalyzeInput(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeBrainWeight, analysis.NormalizationDecisions["LIVER"].Mode)
	assert.Equal(t, domain.ModeBodyWeight, analysis.NormalizationDecisions["BRAIN"].Mode)
	assert.Len(t, input.Overrides, 2, "caller input is untouched")
	assert.Equal(t, "bundled", input.Overrides[0].Reviewer)
}

func TestOverrideLoadFailure(t *testing.T) {
	store := new(MockOverrideStore)
	store.On("ListOverrides", mock.Anything, "TOX-001").Return(nil, errors.New("disk I/O error"))

	svc := newTestService(t, StudyServiceDeps{Overrides: store})
	_, err := svc.AnalyzeInput(context.Background(), hepatotoxicStudy())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load overrides")
}

func TestSetOverrideValidatesAndInvalidates(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cache, err := NewAnalysisCache(domain.CacheConfig{MaxEntries: 8, DefaultTTL: time.Minute}, logger)
	require.NoError(t, err)
	cache.Set(context.Background(), &domain.StudyAnalysis{StudyID: "TOX-001", InputDigest: "abc"})

	store := new(MockOverrideStore)
	store.On("SaveOverride", mock.Anything, "TOX-001", domain.NormalizationOverride{
		Organ: "ADRENAL GLAND", DoseLevel: 2, Mode: domain.ModeANCOVA, Reviewer: "jdoe",
	}).Return(nil)

	svc := newTestService(t, StudyServiceDeps{Overrides: store, Cache: cache})

	err = svc.SetOverride(context.Background(), "TOX-001", domain.NormalizationOverride{
		Organ: " adrenal   gland ", DoseLevel: 2, Mode: domain.ModeANCOVA, Reviewer: "jdoe",
	})
	require.NoError(t, err)
	store.AssertExpectations(t)

	_, ok := cache.Get(context.Background(), "TOX-001", "abc")
	assert.False(t, ok)

	tests := []struct {
		name     string
		studyID  string
		override domain.NormalizationOverride
		field    string
	}{
		{"missing study", "", domain.NormalizationOverride{Organ: "LIVER", Mode: domain.ModeAbsolute}, "study_id"},
		{"missing organ", "S1", domain.NormalizationOverride{Mode: domain.ModeAbsolute}, "organ"},
		{"bad mode", "S1", domain.NormalizationOverride{Organ: "LIVER", Mode: "median"}, "mode"},
		{"negative dose", "S1", domain.NormalizationOverride{Organ: "LIVER", Mode: domain.ModeAbsolute, DoseLevel: -1}, "dose_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SetOverride(context.Background(), tt.studyID, tt.override)
			var vErr *domain.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestOverridesDisabled(t *testing.T) {
	svc := newTestService(t, StudyServiceDeps{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetOverride(ctx, "S1", domain.NormalizationOverride{Organ: "LIVER", Mode: domain.ModeAbsolute}), ErrOverridesDisabled)
	_, err := svc.ListOverrides(ctx, "S1")
	assert.ErrorIs(t, err, ErrOverridesDisabled)
	assert.ErrorIs(t, svc.DeleteOverride(ctx, "S1", "LIVER", 0), ErrOverridesDisabled)

	_, err = svc.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	runs, err := svc.ListRuns(ctx, "S1", 10)
	assert.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDeleteOverrideNormalizesOrgan(t *testing.T) {
	store := new(MockOverrideStore)
	store.On("DeleteOverride", mock.Anything, "S1", "LIVER", 0).Return(nil)

	svc := newTestService(t, StudyServiceDeps{Overrides: store})
	require.NoError(t, svc.DeleteOverride(context.Background(), "S1", "liver", 0))
	store.AssertExpectations(t)
}
