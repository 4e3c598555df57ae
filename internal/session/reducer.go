package session

import (
	"encoding/json"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
	"github.com/jonivernergaard/Oracle-MCP/internal/tabular"
)

// The reducer folds mapper events into SessionState. It is pure and total:
// Apply never blocks, never returns an error, and any event it cannot make
// sense of leaves the prior state intact. Replaying the same event sequence
// from Initial always yields the same state.

// Initial returns the state of a freshly started run: every stage waiting,
// counters at zero.
func Initial(maxIterations int) domain.SessionState {
	statuses := make(map[domain.Stage]domain.StageStatus, len(domain.Stages()))
	for _, s := range domain.Stages() {
		statuses[s] = domain.StageWaiting
	}
	return domain.SessionState{
		StageStatuses: statuses,
		MaxIterations: maxIterations,
	}
}

// Apply folds one event into the state and returns the successor state.
// The input state is not mutated.
func Apply(state domain.SessionState, ev domain.MapperEvent) domain.SessionState {
	state.StageStatuses = cloneStatuses(state.StageStatuses)

	switch ev.Type {
	case domain.EventProgress:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Message == "" {
			return state
		}
		return applyProgress(state, p.Message)

	case domain.EventUsage:
		var p struct {
			Tokens int64 `json:"tokens"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Tokens < 0 {
			return state
		}
		state.TotalTokens += p.Tokens
		return state

	case domain.EventAgentState:
		detail, ok := parseAgentState(ev.Payload)
		if !ok {
			return state
		}
		state.DetailedState = &detail
		if n := len(detail.RecentThoughts); n > 0 {
			state.LastThought = detail.RecentThoughts[n-1]
		}
		return state

	case domain.EventIterationComplete:
		var p struct {
			Iteration int `json:"iteration"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Iteration <= 0 {
			return state
		}
		if p.Iteration > state.Iteration {
			state.Iteration = p.Iteration
		}
		return state

	case domain.EventResult:
		var p struct {
			Source string `json:"source"`
			Target string `json:"target"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return state
		}
		state.TerminalResult = &domain.DatasetPair{
			Source: tabular.Decode(p.Source),
			Target: tabular.Decode(p.Target),
		}
		return state

	case domain.EventError:
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Message == "" {
			return state
		}
		state.TerminalError = p.Message
		return state

	default:
		// Unknown event kinds are a no-op, never an error.
		return state
	}
}

// applyProgress classifies a progress line and applies its stage transition
// monotonically: a stage never moves backwards through
// waiting -> active -> completed.
func applyProgress(state domain.SessionState, line string) domain.SessionState {
	state.CurrentAction = line

	u := classifyProgress(line)
	if u.stage != "" && u.status.Rank() > state.StageStatuses[u.stage].Rank() {
		state.StageStatuses[u.stage] = u.status
	}
	if u.iteration > state.Iteration {
		state.Iteration = u.iteration
	}
	if u.maxIterations > 0 {
		state.MaxIterations = u.maxIterations
	}
	if u.filesSelected >= 0 {
		state.FilesSelected = u.filesSelected
	}
	return state
}

// parseAgentState decodes the detailed-state blob. The recent_thoughts
// value is expected to be a list but upstream output is not reliable: when
// it cannot be parsed as one, it is kept as a single opaque value rather
// than rejected.
func parseAgentState(payload []byte) (domain.AgentState, bool) {
	var raw struct {
		Phase          string          `json:"phase"`
		Batch          int             `json:"batch"`
		BatchTotal     int             `json:"batch_total"`
		RecentThoughts json.RawMessage `json:"recent_thoughts"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.AgentState{}, false
	}
	return domain.AgentState{
		Phase:          raw.Phase,
		Batch:          raw.Batch,
		BatchTotal:     raw.BatchTotal,
		RecentThoughts: decodeStringList(raw.RecentThoughts),
	}, true
}

// decodeStringList parses a value expected to be a JSON string list,
// falling back to a single opaque value when it is anything else.
func decodeStringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	return []string{string(raw)}
}

func cloneStatuses(statuses map[domain.Stage]domain.StageStatus) map[domain.Stage]domain.StageStatus {
	out := make(map[domain.Stage]domain.StageStatus, len(statuses))
	for k, v := range statuses {
		out[k] = v
	}
	return out
}

// ParseEvent converts one framed record into a MapperEvent. Records without
// a type field are malformed and reported so the caller can skip them.
func ParseEvent(record []byte) (domain.MapperEvent, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(record, &raw); err != nil {
		return domain.MapperEvent{}, err
	}
	if raw.Type == "" {
		return domain.MapperEvent{}, domain.NewEngineError(domain.ErrStreamTransport.Code, "event has no type field")
	}
	return domain.MapperEvent{
		Type:    raw.Type,
		Payload: append([]byte(nil), record...),
	}, nil
}
