package session

import (
	"reflect"
	"testing"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

func ev(kind, payload string) domain.MapperEvent {
	return domain.MapperEvent{Type: kind, Payload: []byte(payload)}
}

func progress(msg string) domain.MapperEvent {
	return ev(domain.EventProgress, `{"type":"progress","message":"`+msg+`"}`)
}

func TestApply_ProgressDrivesStages(t *testing.T) {
	state := Initial(3)

	state = Apply(state, progress("Loading source dataset supplier_bank.csv"))
	if got := state.StageStatuses[domain.StageIngest]; got != domain.StageActive {
		t.Errorf("ingest = %q, want active", got)
	}
	if state.CurrentAction != "Loading source dataset supplier_bank.csv" {
		t.Errorf("CurrentAction = %q", state.CurrentAction)
	}

	state = Apply(state, progress("Source dataset loaded (42 columns)"))
	if got := state.StageStatuses[domain.StageIngest]; got != domain.StageCompleted {
		t.Errorf("ingest = %q, want completed", got)
	}

	// A late activation marker must not regress a completed stage.
	state = Apply(state, progress("loading source dataset again"))
	if got := state.StageStatuses[domain.StageIngest]; got != domain.StageCompleted {
		t.Errorf("ingest regressed to %q", got)
	}
}

func TestApply_ReasoningPassCounters(t *testing.T) {
	state := Initial(3)

	state = Apply(state, progress("Starting reasoning pass 2/5"))
	if state.Iteration != 2 || state.MaxIterations != 5 {
		t.Errorf("iteration = %d/%d, want 2/5", state.Iteration, state.MaxIterations)
	}
	if got := state.StageStatuses[domain.StageReason]; got != domain.StageActive {
		t.Errorf("reason = %q, want active", got)
	}

	// Counters only move forward.
	state = Apply(state, progress("Starting reasoning pass 1/5"))
	if state.Iteration != 2 {
		t.Errorf("iteration moved backwards to %d", state.Iteration)
	}

	// N/M on a non-reasoning line is not an iteration counter.
	state = Apply(state, progress("Analyzing legacy schemas chunk 9/12"))
	if state.Iteration != 2 || state.MaxIterations != 5 {
		t.Errorf("counters changed on analyze line: %d/%d", state.Iteration, state.MaxIterations)
	}
}

func TestApply_FilesSelected(t *testing.T) {
	state := Initial(3)
	state = Apply(state, progress("Selected 7 files from BPCS folder"))
	if state.FilesSelected != 7 {
		t.Errorf("FilesSelected = %d, want 7", state.FilesSelected)
	}
	state = Apply(state, progress("Selected 1 file"))
	if state.FilesSelected != 1 {
		t.Errorf("FilesSelected = %d, want 1", state.FilesSelected)
	}
}

func TestApply_UsageIsAdditive(t *testing.T) {
	state := Initial(3)
	state = Apply(state, ev(domain.EventUsage, `{"tokens":1500}`))
	state = Apply(state, ev(domain.EventUsage, `{"tokens":2500}`))
	if state.TotalTokens != 4000 {
		t.Errorf("TotalTokens = %d, want 4000", state.TotalTokens)
	}
	// Negative deltas are malformed and ignored.
	state = Apply(state, ev(domain.EventUsage, `{"tokens":-100}`))
	if state.TotalTokens != 4000 {
		t.Errorf("TotalTokens = %d after negative delta, want 4000", state.TotalTokens)
	}
}

func TestApply_AgentStateReplacedWholesale(t *testing.T) {
	state := Initial(3)
	state = Apply(state, ev(domain.EventAgentState,
		`{"phase":"mapping","batch":1,"batch_total":4,"recent_thoughts":["a","b"]}`))
	if state.DetailedState == nil || state.DetailedState.Phase != "mapping" {
		t.Fatalf("DetailedState = %+v", state.DetailedState)
	}
	if state.LastThought != "b" {
		t.Errorf("LastThought = %q, want b", state.LastThought)
	}

	state = Apply(state, ev(domain.EventAgentState,
		`{"phase":"verify","batch":2,"batch_total":4,"recent_thoughts":["c"]}`))
	if got := state.DetailedState; got.Phase != "verify" || len(got.RecentThoughts) != 1 {
		t.Errorf("DetailedState not replaced: %+v", got)
	}
	if state.LastThought != "c" {
		t.Errorf("LastThought = %q, want c", state.LastThought)
	}
}

func TestApply_AgentStateThoughtsNotAList(t *testing.T) {
	state := Initial(3)
	state = Apply(state, ev(domain.EventAgentState,
		`{"phase":"mapping","recent_thoughts":"just one thought"}`))
	got := state.DetailedState
	if got == nil || !reflect.DeepEqual(got.RecentThoughts, []string{"just one thought"}) {
		t.Errorf("RecentThoughts = %+v, want single-element fallback", got)
	}
}

func TestApply_ResultIsTerminal(t *testing.T) {
	state := Initial(3)
	state = Apply(state, ev(domain.EventResult,
		`{"source":"A,B\n1,2\n","target":"X,Y\na,b\n"}`))
	if !state.Terminal() {
		t.Fatal("state not terminal after result")
	}
	res := state.TerminalResult
	if got := res.Source.Columns; !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("source columns = %v", got)
	}
	if got := res.Target.Rows[0]["X"]; got != "a" {
		t.Errorf("target[0][X] = %q, want a", got)
	}
}

func TestApply_ErrorIsTerminal(t *testing.T) {
	state := Initial(3)
	state = Apply(state, ev(domain.EventError, `{"message":"quota exceeded"}`))
	if state.TerminalError != "quota exceeded" || !state.Terminal() {
		t.Errorf("TerminalError = %q", state.TerminalError)
	}
}

func TestApply_MalformedAndUnknownAreNoOps(t *testing.T) {
	state := Initial(3)
	state = Apply(state, progress("Starting reasoning pass 1/3"))
	before := state

	for _, bad := range []domain.MapperEvent{
		ev(domain.EventProgress, `{"message":`),
		ev(domain.EventProgress, `{"message":""}`),
		ev(domain.EventUsage, `{"tokens":"many"}`),
		ev("telemetry", `{"anything":true}`),
		ev(domain.EventIterationComplete, `{"iteration":0}`),
	} {
		state = Apply(state, bad)
	}
	if !reflect.DeepEqual(state, before) {
		t.Errorf("state changed by no-op events:\nbefore = %+v\nafter  = %+v", before, state)
	}
}

func TestApply_ReplayIsDeterministic(t *testing.T) {
	events := []domain.MapperEvent{
		progress("Loading source dataset s.csv"),
		progress("Source dataset loaded"),
		progress("Selected 3 files"),
		progress("Analyzing legacy schemas"),
		ev(domain.EventUsage, `{"tokens":1200}`),
		progress("Schema analysis complete"),
		progress("Starting reasoning pass 1/2"),
		ev(domain.EventIterationComplete, `{"iteration":1,"target":"X\nv\n"}`),
		progress("Starting reasoning pass 2/2"),
		ev(domain.EventIterationComplete, `{"iteration":2,"target":"X\nw\n"}`),
		progress("All reasoning passes complete"),
		progress("Starting refinement"),
		progress("Refinement complete"),
		ev(domain.EventResult, `{"source":"A\n1\n","target":"X\nw\n"}`),
	}

	fold := func() domain.SessionState {
		s := Initial(2)
		for _, e := range events {
			s = Apply(s, e)
		}
		return s
	}
	first, second := fold(), fold()
	if !reflect.DeepEqual(first, second) {
		t.Error("two folds of the same sequence diverged")
	}
	if !first.Terminal() || first.Iteration != 2 || first.TotalTokens != 1200 {
		t.Errorf("final state = %+v", first)
	}
	for _, st := range domain.Stages() {
		if got := first.StageStatuses[st]; got != domain.StageCompleted {
			t.Errorf("stage %s = %q, want completed", st, got)
		}
	}
}

func TestApply_LateEventsAfterTerminal(t *testing.T) {
	state := Initial(3)
	state = Apply(state, ev(domain.EventResult, `{"source":"A\n1\n","target":"X\na\n"}`))
	state = Apply(state, ev(domain.EventUsage, `{"tokens":10}`))
	if state.TotalTokens != 10 {
		t.Errorf("late usage not folded: %d", state.TotalTokens)
	}
	if state.TerminalResult == nil {
		t.Error("terminal result lost by late event")
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	state := Initial(3)
	_ = Apply(state, progress("Loading source dataset s.csv"))
	if got := state.StageStatuses[domain.StageIngest]; got != domain.StageWaiting {
		t.Errorf("input state mutated: ingest = %q", got)
	}
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"usage","tokens":5}`))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != domain.EventUsage {
		t.Errorf("Type = %q", ev.Type)
	}

	if _, err := ParseEvent([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseEvent([]byte(`{"tokens":5}`)); err == nil {
		t.Error("expected error for missing type")
	}
}
