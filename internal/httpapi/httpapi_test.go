package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jonivernergaard/Oracle-MCP/internal/agent"
	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
	"github.com/jonivernergaard/Oracle-MCP/internal/library"
	"github.com/jonivernergaard/Oracle-MCP/internal/session"
	"github.com/jonivernergaard/Oracle-MCP/internal/store"
)

// newTestServer wires a full handler stack over temp dirs and an empty
// sqlite store, and returns the chi router for direct dispatch.
func newTestServer(t *testing.T) (http.Handler, *Handler) {
	t.Helper()
	root := t.TempDir()

	datasets := filepath.Join(root, "datasets")
	documents := filepath.Join(root, "documents", "BPCS")
	if err := os.MkdirAll(datasets, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(documents, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(datasets, "supplier_bank.csv"), []byte("VENDOR\nV1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(documents, "ITEM.md"),
		[]byte("The IPROD field holds the item number."), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := store.NewDB(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	lib := library.New(datasets, filepath.Join(root, "documents"), zap.NewNop())
	t.Cleanup(func() { lib.Close() })

	registry := agent.NewRegistry()
	if err := registry.Register(agent.ProviderSpec{Name: "gemini", Command: "true"}); err != nil {
		t.Fatal(err)
	}

	h := &Handler{
		Manager:              session.NewManager(registry, db, filepath.Join(root, "output"), zap.NewNop()),
		Library:              lib,
		Registry:             registry,
		DB:                   db,
		DefaultMaxIterations: 3,
		Log:                  zap.NewNop(),
	}
	srv := NewServer(h, ":0")
	return srv.httpServer.Handler, h
}

func TestHealth(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestGetLibrary(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/library", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var listing library.Listing
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listing.Datasets) != 1 || listing.Datasets[0] != "supplier_bank.csv" {
		t.Errorf("Datasets = %v", listing.Datasets)
	}
	if len(listing.DocumentFolders) != 1 || listing.DocumentFolders[0] != "BPCS" {
		t.Errorf("DocumentFolders = %v", listing.DocumentFolders)
	}
}

func TestListProviders(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "gemini") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestGetRun_NotFound(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var apiErr APIError
	if err := json.Unmarshal(w.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if apiErr.Code != domain.ErrRunNotFound.Code {
		t.Errorf("Code = %d, want %d", apiErr.Code, domain.ErrRunNotFound.Code)
	}
}

func TestStartRun_UnknownDataset(t *testing.T) {
	router, _ := newTestServer(t)
	body := `{"source_dataset":"missing.csv","documents_folder":"BPCS","provider":"gemini"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestStartRun_InvalidBody(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetIteration_BadParam(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r1/iterations/zero", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestLocateEvidence(t *testing.T) {
	router, _ := newTestServer(t)
	body := `{"reference":"ITEM.md: IPROD field","folder":"BPCS"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp EvidenceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Identifier != "ITEM.md" || resp.Context != "IPROD field" {
		t.Errorf("reference parsed as %q / %q", resp.Identifier, resp.Context)
	}
	if len(resp.Spans) == 0 {
		t.Error("expected at least one evidence span")
	}
}

func TestLocateEvidence_InvalidReference(t *testing.T) {
	router, _ := newTestServer(t)
	long := strings.Repeat("x", 40)
	body := `{"reference":"` + long + `","folder":"BPCS"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestLocateEvidence_DocumentMissing(t *testing.T) {
	router, _ := newTestServer(t)
	body := `{"reference":"NOPE.md: anything","folder":"BPCS"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evidence", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetDocument(t *testing.T) {
	router, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/library/documents/BPCS/ITEM.md", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "IPROD") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestStreamEvents_FirstBatch(t *testing.T) {
	router, h := newTestServer(t)

	// Seed a run and two persisted events, then read the initial SSE batch.
	ctx := context.Background()
	runRepo := &store.RunRepo{}
	if err := runRepo.Create(ctx, h.DB, domain.RunRecord{
		RunID:  "r1",
		Spec:   domain.JobSpec{SourceDataset: "s", DocumentsPath: "d", MaxIterations: 1, Provider: "gemini"},
		Status: domain.RunCompleted,
	}); err != nil {
		t.Fatal(err)
	}
	eventRepo := &store.EventRepo{}
	for i := int64(1); i <= 2; i++ {
		ev := domain.MapperEvent{RunID: "r1", SeqNo: i, Type: domain.EventUsage, Payload: []byte(`{"tokens":5}`)}
		if err := eventRepo.Append(ctx, h.DB, ev, i); err != nil {
			t.Fatal(err)
		}
	}

	streamCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/r1/events/stream", nil).WithContext(streamCtx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := strings.Count(w.Body.String(), "data: "); got != 2 {
		t.Errorf("SSE frames = %d, want 2\nbody: %s", got, w.Body.String())
	}
}
