// Package iteration keeps every completed reasoning pass's decoded output
// addressable by iteration number, so the view can switch between "final"
// and any historical pass without re-fetching.
package iteration

import (
	"sort"
	"sync"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
	"github.com/jonivernergaard/Oracle-MCP/internal/tabular"
)

// Store is a set of iteration snapshots keyed by iteration number.
// Duplicate numbers are not expected; if one arrives, the last write wins.
type Store struct {
	mu    sync.RWMutex
	snaps map[int]domain.IterationSnapshot
}

// New creates an empty store.
func New() *Store {
	return &Store{snaps: make(map[int]domain.IterationSnapshot)}
}

// Record inserts or overwrites a snapshot by its iteration number.
// Snapshots with a non-positive number are ignored.
func (s *Store) Record(snap domain.IterationSnapshot) {
	if snap.Number <= 0 {
		return
	}
	s.mu.Lock()
	s.snaps[snap.Number] = snap
	s.mu.Unlock()
}

// List returns all snapshots ordered ascending by iteration number.
func (s *Store) List() []domain.IterationSnapshot {
	s.mu.RLock()
	out := make([]domain.IterationSnapshot, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Select materializes the dataset pair for a view. n <= 0 selects the final
// result: the baseline pair as-is. A concrete n decodes that iteration's
// raw target content and pairs it against the same source half as the
// terminal result. The source side never changes across iterations, and
// row correspondence is positional.
func (s *Store) Select(n int, baseline domain.DatasetPair) (domain.DatasetPair, error) {
	if n <= 0 {
		return baseline, nil
	}

	s.mu.RLock()
	snap, ok := s.snaps[n]
	s.mu.RUnlock()
	if !ok {
		return domain.DatasetPair{}, domain.ErrIterationNotFound
	}

	target := tabular.Decode(snap.RawTarget)
	return domain.DatasetPair{
		Source: baseline.Source,
		Target: alignTarget(baseline.Source, target),
	}, nil
}

// alignTarget forces the target to the source's row count so positional
// pairing stays meaningful: excess target rows are dropped, missing ones
// become rows of empty fields.
func alignTarget(source, target domain.TabularDataset) domain.TabularDataset {
	aligned := domain.TabularDataset{
		Columns: target.Columns,
		Rows:    make([]map[string]string, len(source.Rows)),
	}
	for i := range source.Rows {
		if i < len(target.Rows) {
			aligned.Rows[i] = target.Rows[i]
			continue
		}
		row := make(map[string]string, len(target.Columns))
		for _, col := range target.Columns {
			row[col] = ""
		}
		aligned.Rows[i] = row
	}
	return aligned
}
