package overrides

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tox-signal-mcp-server/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens dbPath, creating the file and schema when missing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS normalization_overrides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		study_id TEXT NOT NULL,
		organ TEXT NOT NULL,
		dose_level INTEGER NOT NULL DEFAULT 0,
		mode TEXT NOT NULL,
		reviewer TEXT DEFAULT '',
		rationale TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(study_id, organ, dose_level)
	);

	CREATE INDEX IF NOT EXISTS idx_overrides_study ON normalization_overrides(study_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// SaveOverride inserts the override or replaces the one stored for the same
// study, organ and dose level.
func (s *SQLiteStore) SaveOverride(ctx context.Context, studyID string, o domain.NormalizationOverride) error {
	if err := validate(studyID, o); err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO normalization_overrides (
			study_id, organ, dose_level, mode, reviewer, rationale, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (study_id, organ, dose_level) DO UPDATE SET
			mode = excluded.mode,
			reviewer = excluded.reviewer,
			rationale = excluded.rationale,
			updated_at = excluded.updated_at
	`,
		studyID, o.Organ, o.DoseLevel, string(o.Mode), o.Reviewer, o.Rationale, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

// ListOverrides returns the overrides of one study ordered by organ and dose.
func (s *SQLiteStore) ListOverrides(ctx context.Context, studyID string) ([]domain.NormalizationOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, study_id, organ, dose_level, mode, reviewer, rationale, created_at, updated_at
		FROM normalization_overrides
		WHERE study_id = ?
		ORDER BY organ, dose_level
	`, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	var result []domain.NormalizationOverride
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		result = append(result, r.Override)
	}
	return result, rows.Err()
}

// DeleteOverride removes one override. A missing row is domain.ErrNotFound.
func (s *SQLiteStore) DeleteOverride(ctx context.Context, studyID, organ string, doseLevel int) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM normalization_overrides WHERE study_id = ? AND organ = ? AND dose_level = ?",
		studyID, organ, doseLevel,
	)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Records returns every stored override.
func (s *SQLiteStore) Records(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, study_id, organ, dose_level, mode, reviewer, rationale, created_at, updated_at
		FROM normalization_overrides
		ORDER BY study_id, organ, dose_level
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Count returns the number of stored overrides.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM normalization_overrides").Scan(&count)
	return count, err
}

// ExportJSON writes every override to writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON loads overrides written by ExportJSON.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.Records(ctx)
	if err != nil {
		return fmt.Errorf("failed to list overrides: %w", err)
	}
	if all == nil {
		all = []*Record{}
	}

	export := &Export{
		Version:    exportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Overrides:  all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

func importJSON(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	existing, err := s.Records(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to check existing: %w", err)
	}

	for _, r := range export.Overrides {
		if r == nil {
			continue
		}
		if contains(existing, r) {
			skipped++
			continue
		}
		if err := s.SaveOverride(ctx, r.StudyID, r.Override); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		existing = append(existing, r)
		imported++
	}

	return imported, skipped, nil
}
