package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// SnapshotRepo handles persistence for iteration snapshots.
type SnapshotRepo struct{}

// Upsert inserts a snapshot or, if one already exists for the same run and
// iteration number, overwrites it (last write wins).
func (r *SnapshotRepo) Upsert(ctx context.Context, db *sql.DB, runID string, snap domain.IterationSnapshot, createdAt int64) error {
	const q = `INSERT INTO iteration_snapshots (run_id, iteration, raw_target, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(run_id, iteration) DO UPDATE SET raw_target = excluded.raw_target, created_at = excluded.created_at`
	_, err := db.ExecContext(ctx, q, runID, snap.Number, snap.RawTarget, createdAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// ListByRun returns a run's snapshots ordered ascending by iteration number.
func (r *SnapshotRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]domain.IterationSnapshot, error) {
	const q = `SELECT iteration, raw_target
FROM iteration_snapshots
WHERE run_id = ?
ORDER BY iteration ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.IterationSnapshot
	for rows.Next() {
		var s domain.IterationSnapshot
		if err := rows.Scan(&s.Number, &s.RawTarget); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
