package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// RunRepo handles persistence for RunRecord entries.
type RunRepo struct{}

// Create inserts a new run record.
func (r *RunRepo) Create(ctx context.Context, db *sql.DB, rec domain.RunRecord) error {
	const q = `INSERT INTO runs (run_id, source_dataset, documents_path, max_iterations, provider, model, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.RunID,
		rec.Spec.SourceDataset,
		rec.Spec.DocumentsPath,
		rec.Spec.MaxIterations,
		rec.Spec.Provider,
		rec.Spec.Model,
		string(rec.Status),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateStatus sets a run's status and bumps its updated_at timestamp.
func (r *RunRepo) UpdateStatus(ctx context.Context, db *sql.DB, runID string, status domain.RunStatus, now int64) error {
	const q = `UPDATE runs SET status = ?, updated_at = ? WHERE run_id = ?`
	res, err := db.ExecContext(ctx, q, string(status), now, runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// GetByID returns a run record, or ErrRunNotFound.
func (r *RunRepo) GetByID(ctx context.Context, db *sql.DB, runID string) (*domain.RunRecord, error) {
	const q = `SELECT run_id, source_dataset, documents_path, max_iterations, provider, model, status, created_at, updated_at
FROM runs WHERE run_id = ?`

	row := db.QueryRowContext(ctx, q, runID)

	var rec domain.RunRecord
	var status string
	err := row.Scan(
		&rec.RunID,
		&rec.Spec.SourceDataset,
		&rec.Spec.DocumentsPath,
		&rec.Spec.MaxIterations,
		&rec.Spec.Provider,
		&rec.Spec.Model,
		&status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	rec.Status = domain.RunStatus(status)
	return &rec, nil
}

// ListRecent returns the most recently created runs, newest first.
func (r *RunRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.RunRecord, error) {
	const q = `SELECT run_id, source_dataset, documents_path, max_iterations, provider, model, status, created_at, updated_at
FROM runs ORDER BY created_at DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var recs []domain.RunRecord
	for rows.Next() {
		var rec domain.RunRecord
		var status string
		if err := rows.Scan(
			&rec.RunID,
			&rec.Spec.SourceDataset,
			&rec.Spec.DocumentsPath,
			&rec.Spec.MaxIterations,
			&rec.Spec.Provider,
			&rec.Spec.Model,
			&status,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Status = domain.RunStatus(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
