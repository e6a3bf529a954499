package studydata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tox-signal-mcp-server/internal/domain"
)

func bundle(studyID string) domain.StudyInput {
	p := 0.001
	return domain.StudyInput{
		StudyID:  studyID,
		Metadata: domain.StudyMetadata{Species: "rat"},
		Findings: []domain.RawFindingRow{
			{
				Domain:        domain.DomainLB,
				TestCode:      "ALT",
				EndpointLabel: "Alanine aminotransferase",
				Sex:           domain.SexMale,
				DoseLevel:     3,
				Direction:     domain.DirectionUp,
				Severity:      domain.SeverityAdverse,
				PValue:        &p,
			},
		},
	}
}

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	logger, _ := test.NewNullLogger()
	c, err := NewClient(domain.StudyDataConfig{
		BaseURL:    url,
		APIKey:     "secret",
		Timeout:    2 * time.Second,
		RateLimit:  100,
		RetryCount: retries,
	}, logger)
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewClient(domain.StudyDataConfig{}, logger)
	assert.Error(t, err)

	_, err = NewClient(domain.StudyDataConfig{BaseURL: "not a url"}, logger)
	assert.Error(t, err)
}

func TestFetchStudy_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/studies/TOX-001/bundle", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(bundle("TOX-001"))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL+"/", 0)
	input, err := c.FetchStudy(context.Background(), "TOX-001")

	require.NoError(t, err)
	assert.Equal(t, "TOX-001", input.StudyID)
	require.Len(t, input.Findings, 1)
	assert.Equal(t, "ALT", input.Findings[0].TestCode)
	assert.Equal(t, gobreaker.StateClosed, c.State())
}

func TestFetchStudy_FillsMissingStudyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bundle(""))
	}))
	defer server.Close()

	input, err := newTestClient(t, server.URL, 0).FetchStudy(context.Background(), "TOX-002")
	require.NoError(t, err)
	assert.Equal(t, "TOX-002", input.StudyID)
}

func TestFetchStudy_NotFound(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)
	_, err := c.FetchStudy(context.Background(), "TOX-404")

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "not found is not retried")
	assert.Zero(t, c.Counts().TotalFailures, "not found does not count as a failure")
}

func TestFetchStudy_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(bundle("TOX-001"))
	}))
	defer server.Close()

	input, err := newTestClient(t, server.URL, 1).FetchStudy(context.Background(), "TOX-001")
	require.NoError(t, err)
	assert.Equal(t, "TOX-001", input.StudyID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchStudy_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL, 0).FetchStudy(context.Background(), "TOX-001")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "bad gateway", statusErr.Body)
}

func TestFetchStudy_MalformedAndInvalidBundles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/studies/garbage/bundle":
			w.Write([]byte("{not json"))
		default:
			b := bundle("TOX-001")
			b.Findings[0].Domain = "XX"
			json.NewEncoder(w).Encode(b)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 2)

	_, err := c.FetchStudy(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrMalformedBundle)

	_, err = c.FetchStudy(context.Background(), "invalid")
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestFetchStudy_EmptyID(t *testing.T) {
	c := newTestClient(t, "http://localhost:1", 0)
	_, err := c.FetchStudy(context.Background(), "  ")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "study_id", vErr.Field)
}

func TestFetchStudy_CircuitOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, 0)
	for i := 0; i < 3; i++ {
		_, err := c.FetchStudy(context.Background(), "TOX-001")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())

	_, err := c.FetchStudy(context.Background(), "TOX-001")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "open breaker short-circuits the request")
}

func TestFetchStudy_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(bundle("TOX-001"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server.URL, 0).FetchStudy(ctx, "TOX-001")
	assert.ErrorIs(t, err, context.Canceled)
}
