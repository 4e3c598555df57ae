package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps an HTTP server with engine-specific routing.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to the given address.
func NewServer(h *Handler, listenAddr string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/library", h.GetLibrary)
		r.Get("/library/documents/{folder}", h.ListDocuments)
		r.Get("/library/documents/{folder}/{name}", h.GetDocument)

		r.Get("/providers", h.ListProviders)

		r.Post("/runs", h.StartRun)
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{runID}", h.GetRun)
		r.Post("/runs/{runID}/stop", h.StopRun)
		r.Get("/runs/{runID}/live", h.GetLiveSnapshot)
		r.Get("/runs/{runID}/events/stream", h.StreamEvents)
		r.Get("/runs/{runID}/iterations", h.ListIterations)
		r.Get("/runs/{runID}/iterations/{n}", h.GetIteration)
		r.Get("/runs/{runID}/iterations/{n}/export", h.ExportIteration)

		r.Get("/documents/{folder}/{name}", h.GetDocument)

		r.Post("/evidence", h.LocateEvidence)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:    listenAddr,
			Handler: r,
		},
	}
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// FormatListenURL turns a listen address into a browsable URL. A bare
// ":port" address becomes localhost.
func FormatListenURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// corsMiddleware adds CORS headers for local desktop app access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
