package overrides

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/tox-signal-mcp-server/internal/domain"
)

// PostgresStore implements Store on PostgreSQL. The normalization_overrides
// table is created by the migrations in the migrations directory.
type PostgresStore struct {
	db *sqlx.DB
}

// overrideRow maps one normalization_overrides row.
type overrideRow struct {
	ID        int64     `db:"id"`
	StudyID   string    `db:"study_id"`
	Organ     string    `db:"organ"`
	DoseLevel int       `db:"dose_level"`
	Mode      string    `db:"mode"`
	Reviewer  string    `db:"reviewer"`
	Rationale string    `db:"rationale"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r overrideRow) record() *Record {
	return &Record{
		ID:      r.ID,
		StudyID: r.StudyID,
		Override: domain.NormalizationOverride{
			Organ:     r.Organ,
			DoseLevel: r.DoseLevel,
			Mode:      domain.NormalizationMode(r.Mode),
			Reviewer:  r.Reviewer,
			Rationale: r.Rationale,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

const selectOverrides = `
		SELECT id, study_id, organ, dose_level, mode, reviewer, rationale, created_at, updated_at
		FROM normalization_overrides`

// NewPostgresStore wraps an open connection and verifies it.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: sqlx.NewDb(db, "postgres")}, nil
}

// NewPostgresStoreFromURL opens a pooled connection to databaseURL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// SaveOverride upserts on (study_id, organ, dose_level).
func (s *PostgresStore) SaveOverride(ctx context.Context, studyID string, o domain.NormalizationOverride) error {
	if err := validate(studyID, o); err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO normalization_overrides (
			study_id, organ, dose_level, mode, reviewer, rationale, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (study_id, organ, dose_level) DO UPDATE SET
			mode = EXCLUDED.mode,
			reviewer = EXCLUDED.reviewer,
			rationale = EXCLUDED.rationale,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	var id int64
	err := s.db.GetContext(ctx, &id, query,
		studyID, o.Organ, o.DoseLevel, string(o.Mode), o.Reviewer, o.Rationale, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}
	return nil
}

// ListOverrides returns the overrides of one study ordered by organ and dose.
func (s *PostgresStore) ListOverrides(ctx context.Context, studyID string) ([]domain.NormalizationOverride, error) {
	var rows []overrideRow
	err := s.db.SelectContext(ctx, &rows, selectOverrides+`
		WHERE study_id = $1
		ORDER BY organ, dose_level
	`, studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}

	result := make([]domain.NormalizationOverride, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.record().Override)
	}
	return result, nil
}

// DeleteOverride removes one override. A missing row is domain.ErrNotFound.
func (s *PostgresStore) DeleteOverride(ctx context.Context, studyID, organ string, doseLevel int) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM normalization_overrides WHERE study_id = $1 AND organ = $2 AND dose_level = $3",
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
func (s *PostgresStore) Records(ctx context.Context) ([]*Record, error) {
	var rows []overrideRow
	err := s.db.SelectContext(ctx, &rows, selectOverrides+`
		ORDER BY study_id, organ, dose_level
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}

	result := make([]*Record, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.record())
	}
	return result, nil
}

// Count returns the number of stored overrides.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM normalization_overrides")
	return count, err
}

// ExportJSON writes every override to writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON loads overrides written by ExportJSON.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (int, int, error) {
	return importJSON(ctx, s, reader)
}

// Close closes the underlying connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
