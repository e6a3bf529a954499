// Package overrides stores reviewer normalization overrides per study.
// Overrides survive restarts so that a reviewer's forced mode for an organ is
// applied to every later analysis of the same study.
package overrides

import (
	"context"
	"io"
	"time"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// Record is a stored override with its bookkeeping columns.
type Record struct {
	ID        int64                        `json:"id,omitempty"`
	StudyID   string                       `json:"study_id"`
	Override  domain.NormalizationOverride `json:"override"`
	CreatedAt time.Time                    `json:"created_at"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// Store extends domain.OverrideStore with export and bulk operations.
type Store interface {
	domain.OverrideStore

	// Records returns every stored override across all studies.
	Records(ctx context.Context) ([]*Record, error)

	// Count returns the total number of stored overrides.
	Count(ctx context.Context) (int64, error)

	// ExportJSON writes every override to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads overrides written by ExportJSON. Overrides that already
	// exist for the same study, organ and dose level are skipped.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)
}

// Export is the JSON document produced by ExportJSON.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Overrides  []*Record `json:"overrides"`
}

const exportVersion = "1.0"

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	r := &Record{}
	var mode string
	err := s.Scan(
		&r.ID, &r.StudyID, &r.Override.Organ, &r.Override.DoseLevel, &mode,
		&r.Override.Reviewer, &r.Override.Rationale, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Override.Mode = domain.NormalizationMode(mode)
	return r, nil
}

func validate(studyID string, o domain.NormalizationOverride) error {
	if studyID == "" {
		return domain.NewValidationError("study_id", domain.ErrMissingStudyID.Error(), studyID)
	}
	if o.Organ == "" {
		return domain.NewValidationError("organ", "organ is required", o.Organ)
	}
	if !o.Mode.IsValid() {
		return domain.NewValidationError("mode", domain.ErrInvalidMode.Error(), o.Mode)
	}
	return nil
}

func contains(records []*Record, r *Record) bool {
	for _, existing := range records {
		if existing.StudyID == r.StudyID &&
			existing.Override.Organ == r.Override.Organ &&
			existing.Override.DoseLevel == r.Override.DoseLevel {
			return true
		}
	}
	return false
}
