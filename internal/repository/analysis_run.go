package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// AnalysisRunRepository persists pipeline executions in PostgreSQL. The full
// StudyAnalysis is kept as JSONB so a past run can be replayed verbatim.
type AnalysisRunRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAnalysisRunRepository creates a new analysis run repository
func NewAnalysisRunRepository(db *pgxpool.Pool, logger *logrus.Logger) *AnalysisRunRepository {
	return &AnalysisRunRepository{
		db:  db,
		log: logger,
	}
}

// SaveRun inserts run. An empty ID is replaced by a fresh UUID and a zero
// CreatedAt by the current time.
func (r *AnalysisRunRepository) SaveRun(ctx context.Context, run *domain.AnalysisRun) error {
	if run == nil {
		return domain.NewValidationError("run", "run is required", nil)
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return domain.NewValidationError("id", "run id must be a UUID", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	var result []byte
	if run.Result != nil {
		result, err = json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("encoding analysis result: %w", err)
		}
	}

	query := `
		INSERT INTO analysis_runs (
			id, study_id, input_digest, endpoint_count, syndrome_count,
			lab_match_count, processing_time_ms, result, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err = r.db.Exec(ctx, query,
		id,
		run.StudyID,
		run.InputDigest,
		run.EndpointCount,
		run.SyndromeCount,
		run.LabMatchCount,
		run.ProcessingTimeMs,
		result,
		run.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"run_id":   run.ID,
			"study_id": run.StudyID,
			"error":    err,
		}).Error("Failed to save analysis run")
		return fmt.Errorf("saving analysis run: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"study_id":  run.StudyID,
		"syndromes": run.SyndromeCount,
	}).Debug("Analysis run saved")

	return nil
}

// GetRun retrieves one run including its stored result.
func (r *AnalysisRunRepository) GetRun(ctx context.Context, id string) (*domain.AnalysisRun, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("analysis run %q: %w", id, domain.ErrNotFound)
	}

	query := `
		SELECT id, study_id, input_digest, endpoint_count, syndrome_count,
			   lab_match_count, processing_time_ms, result, created_at
		FROM analysis_runs
		WHERE id = $1`

	run, err := scanRun(r.db.QueryRow(ctx, query, runID), true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("analysis run %q: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"run_id": id,
			"error":  err,
		}).Error("Failed to get analysis run")
		return nil, fmt.Errorf("getting analysis run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs of a study, newest first, without
// their result payloads. limit is clamped to 1..100 (0 means 20).
func (r *AnalysisRunRepository) ListRuns(ctx context.Context, studyID string, limit int) ([]*domain.AnalysisRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, study_id, input_digest, endpoint_count, syndrome_count,
			   lab_match_count, processing_time_ms, NULL::jsonb, created_at
		FROM analysis_runs
		WHERE study_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, studyID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing analysis runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.AnalysisRun, 0)
	for rows.Next() {
		run, err := scanRun(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scanning analysis run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating analysis runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row, withResult bool) (*domain.AnalysisRun, error) {
	var (
		run    domain.AnalysisRun
		id     uuid.UUID
		result []byte
	)
	err := row.Scan(
		&id,
		&run.StudyID,
		&run.InputDigest,
		&run.EndpointCount,
		&run.SyndromeCount,
		&run.LabMatchCount,
		&run.ProcessingTimeMs,
		&result,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.ID = id.String()

	if withResult && len(result) > 0 {
		var analysis domain.StudyAnalysis
		if err := json.Unmarshal(result, &analysis); err != nil {
			return nil, fmt.Errorf("decoding analysis result: %w", err)
		}
		run.Result = &analysis
	}
	return &run, nil
}

var _ domain.AnalysisRunRepository = (*AnalysisRunRepository)(nil)
