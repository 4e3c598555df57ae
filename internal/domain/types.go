// Package domain defines the core types for the Oracle-MCP migration engine.
package domain

// Stage identifies one phase of a migration run.
type Stage string

const (
	StageIngest  Stage = "ingest"
	StageAnalyze Stage = "analyze"
	StageReason  Stage = "reason"
	StageRefine  Stage = "refine"
)

// Stages returns all stages in execution order.
func Stages() []Stage {
	return []Stage{StageIngest, StageAnalyze, StageReason, StageRefine}
}

// StageStatus is the lifecycle status of a stage within a run.
type StageStatus string

const (
	StageWaiting   StageStatus = "waiting"
	StageActive    StageStatus = "active"
	StageCompleted StageStatus = "completed"
)

// Rank orders stage statuses so transitions can be kept monotonic:
// waiting < active < completed.
func (s StageStatus) Rank() int {
	switch s {
	case StageActive:
		return 1
	case StageCompleted:
		return 2
	default:
		return 0
	}
}

// TabularDataset is a decoded delimited document: an ordered header and
// ordered row records. Every row holds exactly the keys in Columns.
type TabularDataset struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// DatasetPair couples the source schema with one candidate target mapping.
// Rows correspond positionally; the source side never changes across
// iterations of a run.
type DatasetPair struct {
	Source TabularDataset `json:"source"`
	Target TabularDataset `json:"target"`
}

// IterationSnapshot is the raw target-side output of one reasoning pass.
type IterationSnapshot struct {
	Number    int    `json:"number"`
	RawTarget string `json:"raw_target"`
}

// DocumentReference names a legacy document and, optionally, the evidence
// phrase to highlight inside it. Derived from a raw "identifier[:context]"
// string on demand, never stored.
type DocumentReference struct {
	Identifier string `json:"identifier"`
	Context    string `json:"context"`
}

// AgentState is the detailed state blob reported by the mapper agent.
// It is replaced wholesale by each agent_state event.
type AgentState struct {
	Phase          string   `json:"phase"`
	Batch          int      `json:"batch"`
	BatchTotal     int      `json:"batch_total"`
	RecentThoughts []string `json:"recent_thoughts"`
}

// SessionState is the reduced view of a migration run. It is produced only
// by folding mapper events one at a time; consumers receive copies.
type SessionState struct {
	StageStatuses map[Stage]StageStatus `json:"stage_statuses"`
	Iteration     int                   `json:"iteration"`
	MaxIterations int                   `json:"max_iterations"`
	CurrentAction string                `json:"current_action"`
	LastThought   string                `json:"last_thought"`
	FilesSelected int                   `json:"files_selected"`
	TotalTokens   int64                 `json:"total_tokens"`
	DetailedState *AgentState           `json:"detailed_state,omitempty"`

	TerminalResult *DatasetPair `json:"terminal_result,omitempty"`
	TerminalError  string       `json:"terminal_error,omitempty"`
}

// Terminal reports whether the run has ended, either with a result or an
// error. Late events after this point are still folded but are inert.
func (s SessionState) Terminal() bool {
	return s.TerminalResult != nil || s.TerminalError != ""
}

// Mapper event kinds. Any other kind is a no-op for the reducer.
const (
	EventProgress          = "progress"
	EventUsage             = "usage"
	EventAgentState        = "agent_state"
	EventIterationComplete = "iteration_complete"
	EventResult            = "result"
	EventError             = "error"
)

// MapperEvent is one framed record from the mapper agent's event stream.
type MapperEvent struct {
	Type    string
	RunID   string
	SeqNo   int64
	Payload []byte
}

// RunStatus is the persisted status of a migration run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// MaxIterationsCap bounds how many reasoning passes a job may request.
const MaxIterationsCap = 20

// JobSpec describes one migration job to launch.
type JobSpec struct {
	SourceDataset string `json:"source_dataset"`
	DocumentsPath string `json:"documents_path"`
	MaxIterations int    `json:"max_iterations"`
	Provider      string `json:"provider"`
	Model         string `json:"model"`
}

// Validate checks the job spec before launch.
func (j JobSpec) Validate() error {
	var problems []string
	if j.SourceDataset == "" {
		problems = append(problems, "source_dataset is required")
	}
	if j.DocumentsPath == "" {
		problems = append(problems, "documents_path is required")
	}
	if j.MaxIterations < 1 || j.MaxIterations > MaxIterationsCap {
		problems = append(problems, "max_iterations must be between 1 and 20")
	}
	if j.Provider == "" {
		problems = append(problems, "provider is required")
	}
	if len(problems) > 0 {
		return NewEngineError(ErrJobSpecInvalid.Code, joinProblems(problems))
	}
	return nil
}

func joinProblems(problems []string) string {
	out := problems[0]
	for _, p := range problems[1:] {
		out += "; " + p
	}
	return out
}

// RunRecord is the persisted registry entry for a run.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Spec      JobSpec   `json:"spec"`
	Status    RunStatus `json:"status"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}
