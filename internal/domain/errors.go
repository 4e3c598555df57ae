package domain

import "fmt"

// EngineError is the unified error type for the engine.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Session / run errors (-32010 to -32039) ----

var (
	ErrRunNotFound       = &EngineError{Code: -32010, Message: "migration run not found"}
	ErrJobSpecInvalid    = &EngineError{Code: -32011, Message: "invalid job specification"}
	ErrNoTerminalResult  = &EngineError{Code: -32012, Message: "run has no terminal result yet"}
	ErrIterationNotFound = &EngineError{Code: -32013, Message: "iteration snapshot not found"}
	ErrStreamTransport   = &EngineError{Code: -32014, Message: "event stream transport failure"}
	ErrNoActiveRun       = &EngineError{Code: -32015, Message: "no migration run is active"}
)

// ---- Agent / launcher errors (-32040 to -32069) ----

var (
	ErrProviderUnavailable = &EngineError{Code: -32040, Message: "mapper provider unavailable"}
	ErrAgentLaunch         = &EngineError{Code: -32041, Message: "failed to launch mapper agent"}
	ErrSnapshotUnavailable = &EngineError{Code: -32042, Message: "live snapshot not available"}
)

// ---- Library / document errors (-32070 to -32099) ----

var (
	ErrDocumentNotFound = &EngineError{Code: -32070, Message: "document not found"}
	ErrInvalidReference = &EngineError{Code: -32071, Message: "document reference failed shape check"}
	ErrInvalidPath      = &EngineError{Code: -32072, Message: "path escapes the library root"}
)

// ---- Store / config errors (-32130 to -32159) ----

var (
	ErrStoreInit     = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrConfigInvalid = &EngineError{Code: -32136, Message: "invalid configuration"}
)
