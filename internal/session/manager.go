package session

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonivernergaard/Oracle-MCP/internal/agent"
	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
	"github.com/jonivernergaard/Oracle-MCP/internal/iteration"
	"github.com/jonivernergaard/Oracle-MCP/internal/store"
)

// Manager coordinates migration runs. At most one run is live at a time;
// starting a new run stops and replaces the previous one. Finished runs stay
// addressable through the durable event log, from which their state is
// rebuilt on demand.
type Manager struct {
	registry   *agent.Registry
	db         *sql.DB
	outputRoot string
	log        *zap.Logger

	runs   *store.RunRepo
	events *store.EventRepo
	snaps  *store.SnapshotRepo

	mu      sync.Mutex
	active  *Run
	session *agent.Session
}

// NewManager creates a run manager.
func NewManager(registry *agent.Registry, db *sql.DB, outputRoot string, log *zap.Logger) *Manager {
	return &Manager{
		registry:   registry,
		db:         db,
		outputRoot: outputRoot,
		log:        log,
		runs:       &store.RunRepo{},
		events:     &store.EventRepo{},
		snaps:      &store.SnapshotRepo{},
	}
}

// Start validates the job, launches the mapper agent, and begins consuming
// its event stream. Any previously active run is stopped first.
func (m *Manager) Start(ctx context.Context, spec domain.JobSpec) (domain.RunRecord, error) {
	if err := spec.Validate(); err != nil {
		return domain.RunRecord{}, err
	}
	provider, err := m.registry.Get(spec.Provider)
	if err != nil {
		return domain.RunRecord{}, err
	}

	runID := uuid.NewString()
	now := time.Now().Unix()
	rec := domain.RunRecord{
		RunID:     runID,
		Spec:      spec,
		Status:    domain.RunRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.runs.Create(ctx, m.db, rec); err != nil {
		return domain.RunRecord{}, err
	}

	sess, err := agent.Launch(context.Background(), provider, spec, runID, m.outputRoot, m.log)
	if err != nil {
		_ = m.runs.UpdateStatus(ctx, m.db, runID, domain.RunFailed, time.Now().Unix())
		return domain.RunRecord{}, err
	}

	run := NewRun(runID, spec, sess, m.db, m.log)

	m.mu.Lock()
	prev, prevSess := m.active, m.session
	m.active, m.session = run, sess
	m.mu.Unlock()

	if prev != nil {
		m.log.Info("stopping previous run", zap.String("run_id", prev.ID))
		_ = prevSess.Stop()
		<-prev.Done()
	}

	go run.Consume(context.Background())
	return rec, nil
}

// StopActive terminates the live run, if any.
func (m *Manager) StopActive() error {
	m.mu.Lock()
	run, sess := m.active, m.session
	m.mu.Unlock()
	if run == nil {
		return domain.ErrNoActiveRun
	}
	if err := sess.Stop(); err != nil {
		return err
	}
	<-run.Done()
	return nil
}

// Active returns the live run, or false when none is running.
func (m *Manager) Active() (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	return m.active, true
}

// LiveSnapshot returns the in-flight raw target content of the named run.
// Only the active run has one.
func (m *Manager) LiveSnapshot(runID string) (string, error) {
	m.mu.Lock()
	run, sess := m.active, m.session
	m.mu.Unlock()
	if run == nil || run.ID != runID {
		return "", domain.ErrSnapshotUnavailable
	}
	return sess.LiveSnapshot()
}

// Get returns the persisted record and the reduced state of a run, live or
// finished.
func (m *Manager) Get(ctx context.Context, runID string) (domain.RunRecord, domain.SessionState, error) {
	rec, err := m.runs.GetByID(ctx, m.db, runID)
	if err != nil {
		return domain.RunRecord{}, domain.SessionState{}, err
	}

	if run, ok := m.Active(); ok && run.ID == runID {
		return *rec, run.State(), nil
	}

	state, _, err := m.replay(ctx, *rec)
	if err != nil {
		return domain.RunRecord{}, domain.SessionState{}, err
	}
	return *rec, state, nil
}

// ListRuns returns the most recent run records, newest first.
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	return m.runs.ListRecent(ctx, m.db, limit)
}

// Events returns a run's persisted events after sinceSeq, in fold order.
func (m *Manager) Events(ctx context.Context, runID string, sinceSeq int64) ([]domain.MapperEvent, error) {
	return m.events.ListByRun(ctx, m.db, runID, sinceSeq)
}

// Iterations lists the reasoning-pass snapshots of a run.
func (m *Manager) Iterations(ctx context.Context, runID string) ([]domain.IterationSnapshot, error) {
	if run, ok := m.Active(); ok && run.ID == runID {
		return run.Iterations(), nil
	}
	if _, err := m.runs.GetByID(ctx, m.db, runID); err != nil {
		return nil, err
	}
	return m.snaps.ListByRun(ctx, m.db, runID)
}

// SelectIteration materializes the dataset pair for one reasoning pass of a
// run. n <= 0 selects the final result.
func (m *Manager) SelectIteration(ctx context.Context, runID string, n int) (domain.DatasetPair, error) {
	if run, ok := m.Active(); ok && run.ID == runID {
		return run.SelectIteration(n)
	}

	rec, err := m.runs.GetByID(ctx, m.db, runID)
	if err != nil {
		return domain.DatasetPair{}, err
	}
	state, iters, err := m.replay(ctx, *rec)
	if err != nil {
		return domain.DatasetPair{}, err
	}
	if state.TerminalResult == nil {
		return domain.DatasetPair{}, domain.ErrNoTerminalResult
	}
	return iters.Select(n, *state.TerminalResult)
}

// replay rebuilds a finished run's state by folding its persisted event log
// from the initial state, and reloads its iteration snapshots. The reducer
// is deterministic, so the result matches what the live run saw.
func (m *Manager) replay(ctx context.Context, rec domain.RunRecord) (domain.SessionState, *iteration.Store, error) {
	events, err := m.events.ListByRun(ctx, m.db, rec.RunID, 0)
	if err != nil {
		return domain.SessionState{}, nil, err
	}
	state := Initial(rec.Spec.MaxIterations)
	for _, ev := range events {
		state = Apply(state, ev)
	}

	iters := iteration.New()
	snaps, err := m.snaps.ListByRun(ctx, m.db, rec.RunID)
	if err != nil {
		return domain.SessionState{}, nil, err
	}
	for _, snap := range snaps {
		iters.Record(snap)
	}
	return state, iters, nil
}
