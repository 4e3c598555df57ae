package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
	"github.com/jonivernergaard/Oracle-MCP/internal/iteration"
	"github.com/jonivernergaard/Oracle-MCP/internal/store"
)

// Stream is the transport a run consumes: raw chunks whose boundaries carry
// no meaning. The agent session satisfies this.
type Stream interface {
	Chunks() <-chan []byte
	Err() error
	Stop() error
}

// Run owns the live state of one migration session. All mutation happens on
// a single consume goroutine; readers get copies under the lock.
type Run struct {
	ID   string
	Spec domain.JobSpec

	stream Stream
	db     *sql.DB
	events *store.EventRepo
	snaps  *store.SnapshotRepo
	runs   *store.RunRepo
	iters  *iteration.Store
	log    *zap.Logger

	mu    sync.RWMutex
	state domain.SessionState
	seq   int64

	done chan struct{}
}

// NewRun prepares a run around a launched stream. Call Consume on its own
// goroutine to start folding.
func NewRun(id string, spec domain.JobSpec, stream Stream, db *sql.DB, log *zap.Logger) *Run {
	return &Run{
		ID:     id,
		Spec:   spec,
		stream: stream,
		db:     db,
		events: &store.EventRepo{},
		snaps:  &store.SnapshotRepo{},
		runs:   &store.RunRepo{},
		iters:  iteration.New(),
		log:    log,
		state:  Initial(spec.MaxIterations),
		done:   make(chan struct{}),
	}
}

// State returns a copy of the current reduced state.
func (r *Run) State() domain.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.state
	s.StageStatuses = cloneStatuses(s.StageStatuses)
	return s
}

// Seq returns the sequence number of the last folded event.
func (r *Run) Seq() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// Done is closed once the stream has ended and the final state is visible.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Stop tears down the underlying stream. The consume goroutine observes the
// closed channel and finishes normally.
func (r *Run) Stop() error {
	return r.stream.Stop()
}

// Iterations lists the recorded reasoning-pass snapshots in ascending order.
func (r *Run) Iterations() []domain.IterationSnapshot {
	return r.iters.List()
}

// SelectIteration materializes the dataset pair for one reasoning pass,
// using the terminal result as the baseline. Iteration 0 (or any
// non-positive n) selects the final result itself.
func (r *Run) SelectIteration(n int) (domain.DatasetPair, error) {
	r.mu.RLock()
	result := r.state.TerminalResult
	r.mu.RUnlock()
	if result == nil {
		return domain.DatasetPair{}, domain.ErrNoTerminalResult
	}
	return r.iters.Select(n, *result)
}

// Consume drains the stream to completion: de-frame each chunk, fold every
// complete record, persist as it goes. Blocks until the stream closes.
func (r *Run) Consume(ctx context.Context) {
	defer close(r.done)

	var framer Framer
	for chunk := range r.stream.Chunks() {
		for _, record := range framer.Feed(chunk) {
			r.fold(ctx, record)
		}
	}
	if tail := framer.Flush(); len(tail) > 0 {
		r.fold(ctx, tail)
	}

	r.finish(ctx, r.stream.Err())
}

// fold parses one framed record and applies it. Malformed records are
// logged and skipped; the stream as a whole survives them.
func (r *Run) fold(ctx context.Context, record []byte) {
	ev, err := ParseEvent(record)
	if err != nil {
		r.log.Warn("skipping malformed event record",
			zap.String("run_id", r.ID),
			zap.Error(err))
		return
	}

	r.mu.Lock()
	r.seq++
	ev.RunID = r.ID
	ev.SeqNo = r.seq
	r.state = Apply(r.state, ev)
	state := r.state
	r.mu.Unlock()

	r.persistEvent(ctx, ev)

	if ev.Type == domain.EventIterationComplete {
		r.recordIteration(ctx, ev, state)
	}
}

// persistEvent appends to the durable event log. Persistence is best
// effort: a storage hiccup must not stall the live fold.
func (r *Run) persistEvent(ctx context.Context, ev domain.MapperEvent) {
	if r.db == nil {
		return
	}
	if err := r.events.Append(ctx, r.db, ev, time.Now().Unix()); err != nil {
		r.log.Warn("event log append failed",
			zap.String("run_id", r.ID),
			zap.Int64("seq_no", ev.SeqNo),
			zap.Error(err))
	}
}

// recordIteration captures the raw target snapshot carried by an
// iteration_complete event, both in memory and durably.
func (r *Run) recordIteration(ctx context.Context, ev domain.MapperEvent, state domain.SessionState) {
	snap, ok := decodeIterationSnapshot(ev.Payload)
	if !ok {
		return
	}
	r.iters.Record(snap)
	if r.db != nil {
		if err := r.snaps.Upsert(ctx, r.db, r.ID, snap, time.Now().Unix()); err != nil {
			r.log.Warn("iteration snapshot persist failed",
				zap.String("run_id", r.ID),
				zap.Int("iteration", snap.Number),
				zap.Error(err))
		}
	}
	r.log.Info("reasoning pass complete",
		zap.String("run_id", r.ID),
		zap.Int("iteration", snap.Number),
		zap.Int("max_iterations", state.MaxIterations))
}

// finish resolves the terminal state once the stream ends. A transport
// failure on a run that never reached a terminal event becomes the run's
// terminal error; a clean close without a terminal event does too.
func (r *Run) finish(ctx context.Context, streamErr error) {
	r.mu.Lock()
	if !r.state.Terminal() {
		msg := domain.ErrStreamTransport.Message
		if streamErr != nil {
			msg = streamErr.Error()
		}
		r.state.TerminalError = msg
	}
	status := domain.RunCompleted
	if r.state.TerminalError != "" {
		status = domain.RunFailed
	}
	r.mu.Unlock()

	if r.db != nil {
		if err := r.runs.UpdateStatus(ctx, r.db, r.ID, status, time.Now().Unix()); err != nil {
			r.log.Warn("run status update failed",
				zap.String("run_id", r.ID),
				zap.Error(err))
		}
	}
	r.log.Info("run finished",
		zap.String("run_id", r.ID),
		zap.String("status", string(status)))
}

// decodeIterationSnapshot pulls the snapshot out of an iteration_complete
// payload. Events without a positive iteration number carry no snapshot.
func decodeIterationSnapshot(payload []byte) (domain.IterationSnapshot, bool) {
	var p struct {
		Iteration int    `json:"iteration"`
		Target    string `json:"target"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.Iteration <= 0 {
		return domain.IterationSnapshot{}, false
	}
	return domain.IterationSnapshot{Number: p.Iteration, RawTarget: p.Target}, true
}
