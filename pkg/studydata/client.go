// Package studydata fetches study statistics bundles from the external
// analysis service. Calls are rate limited and guarded by a circuit breaker
// so a failing upstream does not stall every analysis request.
package studydata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// maxBundleBytes caps the size of a decoded bundle.
const maxBundleBytes = 64 << 20

var (
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("study data service unavailable")
	// ErrMalformedBundle is returned when the response body is not a bundle.
	ErrMalformedBundle = errors.New("malformed study bundle")
)

// Client is a domain.StudyDataSource backed by the analysis service HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	retries    int
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Logger
}

// StatusError reports an unexpected HTTP status from the upstream.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("study data service returned status %d: %s", e.StatusCode, e.Body)
}

// NewClient builds a client from config. BaseURL is required.
func NewClient(config domain.StudyDataConfig, logger *logrus.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("study data base URL is required")
	}
	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid study data base URL: %w", err)
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.RetryCount < 0 {
		config.RetryCount = 0
	}

	c := &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		retries: config.RetryCount,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		log:       logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "StudyData",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Missing studies and bad bundles are caller errors, not upstream
		// failures, and must not trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound) || isValidation(err) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return c, nil
}

// FetchStudy implements domain.StudyDataSource.
func (c *Client) FetchStudy(ctx context.Context, studyID string) (*domain.StudyInput, error) {
	studyID = strings.TrimSpace(studyID)
	if studyID == "" {
		return nil, domain.NewValidationError("study_id", domain.ErrMissingStudyID.Error(), studyID)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchWithRetry(ctx, studyID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w (circuit breaker %s)", ErrUnavailable, c.breaker.State())
		}
		return nil, err
	}

	return result.(*domain.StudyInput), nil
}

func (c *Client) fetchWithRetry(ctx context.Context, studyID string) (*domain.StudyInput, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		input, err := c.fetch(ctx, studyID)
		if err == nil || !retryable(err) {
			return input, err
		}
		lastErr = err
		c.log.WithFields(logrus.Fields{
			"study_id": studyID,
			"attempt":  attempt + 1,
			"error":    err,
		}).Warn("Study bundle fetch failed")
	}
	return nil, lastErr
}

func (c *Client) fetch(ctx context.Context, studyID string) (*domain.StudyInput, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	endpoint := fmt.Sprintf("%s/studies/%s/bundle", c.baseURL, url.PathEscape(studyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("study %s: %w", studyID, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var input domain.StudyInput
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBundleBytes)).Decode(&input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}
	if input.StudyID == "" {
		input.StudyID = studyID
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"study_id": studyID,
		"findings": len(input.Findings),
	}).Debug("Study bundle fetched")

	return &input, nil
}

// State exposes the breaker state for health reporting.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts exposes the breaker counters for health reporting.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, ErrMalformedBundle), isValidation(err):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func isValidation(err error) bool {
	var vErr *domain.ValidationError
	return errors.As(err, &vErr)
}

var _ domain.StudyDataSource = (*Client)(nil)
