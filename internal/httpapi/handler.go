// Package httpapi provides the HTTP API for the Oracle-MCP engine.
package httpapi

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jonivernergaard/Oracle-MCP/internal/agent"
	"github.com/jonivernergaard/Oracle-MCP/internal/docref"
	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
	"github.com/jonivernergaard/Oracle-MCP/internal/evidence"
	"github.com/jonivernergaard/Oracle-MCP/internal/library"
	"github.com/jonivernergaard/Oracle-MCP/internal/session"
	"github.com/jonivernergaard/Oracle-MCP/internal/tabular"
)

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Manager              *session.Manager
	Library              *library.Library
	Registry             *agent.Registry
	DB                   *sql.DB
	DefaultMaxIterations int
	Log                  *zap.Logger
}

// StartRunRequest is the body for POST /api/v1/runs.
type StartRunRequest struct {
	SourceDataset   string `json:"source_dataset"`
	DocumentsFolder string `json:"documents_folder"`
	MaxIterations   int    `json:"max_iterations"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
}

// RunView is the response shape for a single run.
type RunView struct {
	Record domain.RunRecord    `json:"record"`
	State  domain.SessionState `json:"state"`
}

// EvidenceRequest is the body for POST /api/v1/evidence.
type EvidenceRequest struct {
	Reference string `json:"reference"`
	Folder    string `json:"folder"`
}

// EvidenceResponse carries a document body together with the evidence
// spans located in it.
type EvidenceResponse struct {
	Identifier string          `json:"identifier"`
	Context    string          `json:"context"`
	Body       string          `json:"body"`
	Spans      []evidence.Span `json:"spans"`
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetLibrary handles GET /api/v1/library.
func (h *Handler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	listing, err := h.Library.Listing()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// ListDocuments handles GET /api/v1/library/documents/{folder}.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	names, err := h.Library.Documents(chi.URLParam(r, "folder"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"documents": names})
}

// GetDocument handles GET /api/v1/library/documents/{folder}/{name}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	body, err := h.Library.Document(chi.URLParam(r, "folder"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, body)
}

// ListProviders handles GET /api/v1/providers.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.Registry.List()})
}

// StartRun handles POST /api/v1/runs.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}
	if req.MaxIterations == 0 {
		req.MaxIterations = h.DefaultMaxIterations
	}

	datasetPath, err := h.Library.DatasetPath(req.SourceDataset)
	if err != nil {
		writeError(w, err)
		return
	}
	documentsPath, err := h.Library.DocumentsPath(req.DocumentsFolder)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.Manager.Start(r.Context(), domain.JobSpec{
		SourceDataset: datasetPath,
		DocumentsPath: documentsPath,
		MaxIterations: req.MaxIterations,
		Provider:      req.Provider,
		Model:         req.Model,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListRuns handles GET /api/v1/runs.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.Manager.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/runs/{runID}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	rec, state, err := h.Manager.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RunView{Record: rec, State: state})
}

// StopRun handles POST /api/v1/runs/{runID}/stop.
func (h *Handler) StopRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if run, ok := h.Manager.Active(); !ok || run.ID != runID {
		writeError(w, domain.ErrNoActiveRun)
		return
	}
	if err := h.Manager.StopActive(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// GetLiveSnapshot handles GET /api/v1/runs/{runID}/live.
func (h *Handler) GetLiveSnapshot(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Manager.LiveSnapshot(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"raw":     raw,
		"dataset": tabular.Decode(raw),
	})
}

// ListIterations handles GET /api/v1/runs/{runID}/iterations.
func (h *Handler) ListIterations(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Manager.Iterations(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	numbers := make([]int, 0, len(snaps))
	for _, s := range snaps {
		numbers = append(numbers, s.Number)
	}
	writeJSON(w, http.StatusOK, map[string][]int{"iterations": numbers})
}

// GetIteration handles GET /api/v1/runs/{runID}/iterations/{n}.
// n is a positive iteration number, or "final" for the terminal result.
func (h *Handler) GetIteration(w http.ResponseWriter, r *http.Request) {
	n, err := parseIterationParam(chi.URLParam(r, "n"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: err.Error()})
		return
	}
	pair, err := h.Manager.SelectIteration(r.Context(), chi.URLParam(r, "runID"), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// ExportIteration handles GET /api/v1/runs/{runID}/iterations/{n}/export.
// Returns the target side as a downloadable CSV file.
func (h *Handler) ExportIteration(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	n, err := parseIterationParam(chi.URLParam(r, "n"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: err.Error()})
		return
	}
	pair, err := h.Manager.SelectIteration(r.Context(), runID, n)
	if err != nil {
		writeError(w, err)
		return
	}

	name := fmt.Sprintf("Final_Mapping_%s.csv", runID)
	if n > 0 {
		name = fmt.Sprintf("Mapping_%s_pass%d.csv", runID, n)
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, tabular.Encode(pair.Target))
}

// LocateEvidence handles POST /api/v1/evidence. It resolves a raw document
// reference, loads the document, and returns the evidence spans found.
func (h *Handler) LocateEvidence(w http.ResponseWriter, r *http.Request) {
	var req EvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: 400, Message: "invalid request body"})
		return
	}

	ref := docref.Resolve(req.Reference)
	if !docref.Valid(ref) {
		writeError(w, domain.ErrInvalidReference)
		return
	}
	body, err := h.Library.Document(req.Folder, ref.Identifier)
	if err != nil {
		writeError(w, err)
		return
	}

	spans := evidence.Locate(ref.Context, body)
	writeJSON(w, http.StatusOK, EvidenceResponse{
		Identifier: ref.Identifier,
		Context:    ref.Context,
		Body:       body,
		Spans:      spans,
	})
}

// StreamEvents handles GET /api/v1/runs/{runID}/events/stream (SSE).
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial batch of events.
	events, err := h.Manager.Events(r.Context(), runID, 0)
	if err != nil {
		writeSSEError(w, flusher, err)
		return
	}
	for _, ev := range events {
		writeSSEEvent(w, flusher, ev)
	}

	lastSeq := int64(0)
	if len(events) > 0 {
		lastSeq = events[len(events)-1].SeqNo
	}

	// Poll for new events.
	ctx := r.Context()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newEvents, err := h.Manager.Events(ctx, runID, lastSeq)
			if err != nil {
				return
			}
			for _, ev := range newEvents {
				writeSSEEvent(w, flusher, ev)
				lastSeq = ev.SeqNo
			}
		}
	}
}

func parseIterationParam(raw string) (int, error) {
	if raw == "final" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("iteration must be a positive number or \"final\"")
	}
	return n, nil
}

// sseEvent is the wire shape of one event on the SSE stream.
type sseEvent struct {
	Type    string          `json:"type"`
	SeqNo   int64           `json:"seq_no"`
	Payload json.RawMessage `json:"payload"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if engErr, ok := err.(*domain.EngineError); ok {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrRunNotFound.Code, domain.ErrIterationNotFound.Code,
			domain.ErrDocumentNotFound.Code, domain.ErrNoActiveRun.Code,
			domain.ErrSnapshotUnavailable.Code:
			status = http.StatusNotFound
		case domain.ErrJobSpecInvalid.Code, domain.ErrInvalidPath.Code:
			status = http.StatusBadRequest
		case domain.ErrInvalidReference.Code, domain.ErrNoTerminalResult.Code:
			status = http.StatusUnprocessableEntity
		case domain.ErrProviderUnavailable.Code:
			status = http.StatusConflict
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev domain.MapperEvent) {
	data, _ := json.Marshal(sseEvent{Type: ev.Type, SeqNo: ev.SeqNo, Payload: ev.Payload})
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
