// Package web serves a read-only JSON status API over the run journal
// and the on-disk run archive. Deploys start only from the CLI; there
// are no mutation endpoints.
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailward/redeploy/internal/journal"
	"github.com/mailward/redeploy/internal/pipeline"
)

// Server is the read-only status API server.
type Server struct {
	store   *pipeline.Store
	journal *journal.Journal
	port    int
}

// NewServer creates a Server over the given store and journal.
func NewServer(store *pipeline.Store, jnl *journal.Journal, port int) *Server {
	return &Server{store: store, journal: jnl, port: port}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/{id}", s.handleGetRun)
	r.Get("/api/runs/{id}/events", s.handleRunEvents)
	r.Get("/api/runs/{id}/steps/{step}/output", s.handleStepOutput)
	return r
}

// Start listens on the configured port and blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	log.Printf("redeploy status API listening on http://%s", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
