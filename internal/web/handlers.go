package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const defaultListLimit = 50

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// runSummary is the list-view shape: journal row fields only, no step
// results.
type runSummary struct {
	RunID       string `json:"run_id"`
	Target      string `json:"target"`
	Service     string `json:"service"`
	Status      string `json:"status"`
	AbortReason string `json:"abort_reason,omitempty"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at,omitempty"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rows, err := s.journal.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]runSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, runSummary{
			RunID:       row.RunID,
			Target:      row.Target,
			Service:     row.Service,
			Status:      row.Status,
			AbortReason: row.AbortReason,
			StartedAt:   row.StartedAt,
			FinishedAt:  row.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetRun serves the full archived run record, step results
// included. The archive is authoritative; the journal only indexes it.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.Get(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	row, err := s.journal.GetRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "run "+id+" not found")
		return
	}

	events, err := s.journal.Events(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type stepOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

func (s *Server) handleStepOutput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	step := chi.URLParam(r, "step")

	stdout, stderr, err := s.store.StepOutput(id, step)
	if err != nil {
		writeError(w, http.StatusNotFound, "no output for run "+id+" step "+step)
		return
	}
	writeJSON(w, http.StatusOK, stepOutput{Stdout: stdout, Stderr: stderr})
}
