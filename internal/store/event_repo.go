package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// EventRepo handles persistence for the append-only run event log.
type EventRepo struct{}

// Append inserts one mapper event.
func (r *EventRepo) Append(ctx context.Context, db *sql.DB, ev domain.MapperEvent, createdAt int64) error {
	const q = `INSERT INTO run_events (run_id, seq_no, event_type, payload, created_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		ev.RunID,
		ev.SeqNo,
		ev.Type,
		string(ev.Payload),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListByRun returns events for a run with sequence numbers greater than
// sinceSeq, ordered by sequence number ascending. Arrival order equals
// fold order, so replaying the result through the reducer rebuilds the
// run's state.
func (r *EventRepo) ListByRun(ctx context.Context, db *sql.DB, runID string, sinceSeq int64) ([]domain.MapperEvent, error) {
	const q = `SELECT run_id, seq_no, event_type, payload
FROM run_events
WHERE run_id = ? AND seq_no > ?
ORDER BY seq_no ASC`

	rows, err := db.QueryContext(ctx, q, runID, sinceSeq)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.MapperEvent
	for rows.Next() {
		var ev domain.MapperEvent
		var payload string
		if err := rows.Scan(&ev.RunID, &ev.SeqNo, &ev.Type, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = []byte(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}
