// Package repositories persists row-rewriting progress so interrupted runs can resume.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/database"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// WatermarkRepository stores per-table rewrite progress keyed by run fingerprint.
type WatermarkRepository interface {
	// Get returns the stored watermark, or a zero watermark (NextChunk 0) when none exists.
	Get(ctx context.Context, runFingerprint, table string) (*models.Watermark, error)

	// Save upserts the watermark.
	Save(ctx context.Context, wm *models.Watermark) error

	// Clear removes every watermark for a run.
	Clear(ctx context.Context, runFingerprint string) error
}

// watermarkRepository implements WatermarkRepository using PostgreSQL.
type watermarkRepository struct {
	db *database.DB
}

// NewWatermarkRepository creates a PostgreSQL-backed watermark repository.
// The ingest_watermarks table must exist (see database.RunMigrations).
func NewWatermarkRepository(db *database.DB) WatermarkRepository {
	return &watermarkRepository{db: db}
}

func (r *watermarkRepository) Get(ctx context.Context, runFingerprint, table string) (*models.Watermark, error) {
	query := `
		SELECT next_chunk, rows_written
		FROM ingest_watermarks
		WHERE run_fingerprint = $1 AND table_name = $2`

	wm := &models.Watermark{RunFingerprint: runFingerprint, Table: table}
	err := r.db.QueryRow(ctx, query, runFingerprint, table).Scan(&wm.NextChunk, &wm.RowsWritten)
	if errors.Is(err, pgx.ErrNoRows) {
		return wm, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watermark: %w", err)
	}
	return wm, nil
}

func (r *watermarkRepository) Save(ctx context.Context, wm *models.Watermark) error {
	if wm.NextChunk < 0 {
		return fmt.Errorf("%w: negative chunk %d for %s", apperrors.ErrWatermarkCorrupt, wm.NextChunk, wm.Table)
	}

	query := `
		INSERT INTO ingest_watermarks (run_fingerprint, table_name, next_chunk, rows_written, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (run_fingerprint, table_name)
		DO UPDATE SET next_chunk = EXCLUDED.next_chunk,
		              rows_written = EXCLUDED.rows_written,
		              updated_at = now()`

	if _, err := r.db.Exec(ctx, query, wm.RunFingerprint, wm.Table, wm.NextChunk, wm.RowsWritten); err != nil {
		return fmt.Errorf("failed to save watermark: %w", err)
	}
	return nil
}

func (r *watermarkRepository) Clear(ctx context.Context, runFingerprint string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM ingest_watermarks WHERE run_fingerprint = $1`, runFingerprint); err != nil {
		return fmt.Errorf("failed to clear watermarks: %w", err)
	}
	return nil
}

var _ WatermarkRepository = (*watermarkRepository)(nil)
