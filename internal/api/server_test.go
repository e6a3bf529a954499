package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tox-signal-mcp-server/internal/config"
	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/overrides"
	"github.com/tox-signal-mcp-server/internal/service"
	"github.com/tox-signal-mcp-server/internal/studytest"
	"github.com/tox-signal-mcp-server/pkg/studydata"
)

// MockStudyDataSource is a mock implementation of domain.StudyDataSource
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

type testEnv struct {
	server *Server
	source *MockStudyDataSource
	store  *overrides.SQLiteStore
}

func newTestEnv(t *testing.T, checks ...HealthCheck) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: error\n"), 0o600))
	manager, err := config.NewManagerFromFile(path)
	require.NoError(t, err)

	store, err := overrides.NewSQLiteStore(filepath.Join(t.TempDir(), "overrides.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, _ := test.NewNullLogger()
	cache, err := service.NewAnalysisCache(domain.CacheConfig{MaxEntries: 8}, logger)
	require.NoError(t, err)

	source := &MockStudyDataSource{}
	studies := service.NewStudyService(logger, service.NewAnalyzer(logger, domain.DefaultAnalysisConfig()), service.StudyServiceDeps{
		Source:    source,
		Overrides: store,
		Cache:     cache,
	})

	return &testEnv{
		server: NewServer(manager, studies, logger, checks...),
		source: source,
		store:  store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) domain.ServiceError {
	t.Helper()
	var svcErr domain.ServiceError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &svcErr))
	return svcErr
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, gin.ReleaseMode, gin.Mode())
}

func TestReadiness(t *testing.T) {
	env := newTestEnv(t,
		HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	w := env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestAnalyzeInput(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/analyze", studytest.Hepatotoxic())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var analysis domain.StudyAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	assert.Equal(t, studytest.StudyID, analysis.StudyID)
	require.NotEmpty(t, analysis.Syndromes)
	assert.Equal(t, "XS01", analysis.Syndromes[0].ID)
	assert.NotEmpty(t, analysis.InputDigest)
}

func TestAnalyzeInput_Invalid(t *testing.T) {
	env := newTestEnv(t)

	input := studytest.Hepatotoxic()
	input.StudyID = ""
	w := env.do(t, http.MethodPost, "/api/v1/analyze", input)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeValidation, decodeError(t, w).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeStudy(t *testing.T) {
	env := newTestEnv(t)
	env.source.On("FetchStudy", mock.Anything, "TOX-001").Return(studytest.Hepatotoxic(), nil)
	env.source.On("FetchStudy", mock.Anything, "TOX-404").Return(nil, fmt.Errorf("study TOX-404: %w", domain.ErrNotFound))
	env.source.On("FetchStudy", mock.Anything, "TOX-503").Return(nil, studydata.ErrUnavailable)

	w := env.do(t, http.MethodPost, "/api/v1/studies/TOX-001/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/v1/studies/TOX-404/analyze", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodeNotFound, decodeError(t, w).Code)

	w = env.do(t, http.MethodPost, "/api/v1/studies/TOX-503/analyze", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, domain.CodeUpstreamError, decodeError(t, w).Code)

	env.source.AssertExpectations(t)
}

func TestMagnitudeFloor(t *testing.T) {
	env := newTestEnv(t)
	g := 0.3
	up := domain.DirectionUp

	w := env.do(t, http.MethodPost, "/api/v1/magnitude-floor", MagnitudeFloorRequest{
		Endpoint: domain.EndpointSummary{
			EndpointLabel: "LIVER weight",
			Domain:        domain.DomainOM,
			Specimen:      "LIVER",
			MaxEffectSize: &g,
			Direction:     &up,
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var check domain.FloorCheck
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &check))
	assert.False(t, check.Passed)
	assert.NotEmpty(t, check.Violation)

	w = env.do(t, http.MethodPost, "/api/v1/magnitude-floor", MagnitudeFloorRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogs(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/lab-rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rules struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	assert.Equal(t, 26, rules.Count)

	w = env.do(t, http.MethodGet, "/api/v1/lab-rules?category=governance", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rules))
	assert.Greater(t, rules.Count, 0)
	assert.Less(t, rules.Count, 26)

	w = env.do(t, http.MethodGet, "/api/v1/syndromes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var syndromes struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &syndromes))
	assert.Equal(t, 10, syndromes.Count)
}

func TestOverrideLifecycle(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/studies/TOX-001/overrides", domain.NormalizationOverride{
		Organ:     "liver",
		DoseLevel: 3,
		Mode:      domain.ModeANCOVA,
		Reviewer:  "pathologist",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/studies/TOX-001/overrides", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed struct {
		Overrides []domain.NormalizationOverride `json:"overrides"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed.Overrides, 1)
	assert.Equal(t, "LIVER", listed.Overrides[0].Organ)

	w = env.do(t, http.MethodPost, "/api/v1/analyze", studytest.Hepatotoxic())
	require.Equal(t, http.StatusOK, w.Code)
	var analysis domain.StudyAnalysis
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &analysis))
	assert.True(t, analysis.NormalizationDecisions["LIVER"].UserOverridden)

	w = env.do(t, http.MethodDelete, "/api/v1/studies/TOX-001/overrides/liver?dose_level=3", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/studies/TOX-001/overrides/liver?dose_level=3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/v1/studies/TOX-001/overrides/liver?dose_level=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetOverride_Invalid(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/studies/TOX-001/overrides", domain.NormalizationOverride{Organ: "LIVER", Mode: "ratio"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeValidation, decodeError(t, w).Code)
}

func TestRunsWithoutRepository(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/studies/TOX-001/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"runs":[]`)

	w = env.do(t, http.MethodGet, "/api/v1/studies/TOX-001/runs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/runs/abc", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheStats(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/v1/analyze", studytest.Hepatotoxic())
	env.do(t, http.MethodPost, "/api/v1/analyze", studytest.Hepatotoxic())

	w := env.do(t, http.MethodGet, "/api/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats service.CacheStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.MemoryHits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.NewValidationError("x", "bad", nil), http.StatusBadRequest, domain.CodeValidation},
		{fmt.Errorf("wrapped: %w", domain.ErrNotFound), http.StatusNotFound, domain.CodeNotFound},
		{service.ErrOverridesDisabled, http.StatusNotImplemented, domain.CodeDisabled},
		{service.ErrNoDataSource, http.StatusNotImplemented, domain.CodeDisabled},
		{&studydata.StatusError{StatusCode: 429}, http.StatusTooManyRequests, domain.CodeRateLimit},
		{&studydata.StatusError{StatusCode: 500}, http.StatusBadGateway, domain.CodeUpstreamError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, domain.CodeTimeout},
		{errors.New("boom"), http.StatusInternalServerError, domain.CodeAnalysisFailed},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyze", nil)
	req.Header.Set("Origin", "http://reviewer.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}
