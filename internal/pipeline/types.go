package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Step kinds. Command steps shell out through the command runner;
// the other kinds run in-process but still record a StepResult so a
// run's result list covers every stage in order.
const (
	KindCommand = "command"
	KindAssets  = "assets"
	KindGate    = "gate"
	KindKeys    = "keys"
	KindSmoke   = "smoke"
)

// Step statuses.
const (
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
	StepTolerated = "tolerated"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunAborted   = "aborted"
)

// Step is one immutable stage of the deployment plan. The orchestrator
// builds the full list once per run; steps are never mutated afterwards.
type Step struct {
	Name              string            `json:"name"`
	Kind              string            `json:"kind"`
	Argv              []string          `json:"argv,omitempty"`
	Dir               string            `json:"dir,omitempty"`
	Env               map[string]string `json:"env,omitempty"`
	ContinueOnFailure bool              `json:"continue_on_failure,omitempty"`
	Timeout           time.Duration     `json:"timeout,omitempty"`
}

// StepResult records the outcome of one attempted step. Results are
// written once and never mutated. Stdout and Stderr are persisted as
// raw files next to run.json, not inside it.
type StepResult struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	Argv       []string  `json:"argv,omitempty"`
	Dir        string    `json:"dir,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"-"`
	Stderr     string    `json:"-"`
	Status     string    `json:"status"`
	Note       string    `json:"note,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the step ran.
func (r *StepResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run is the persisted record of a single orchestrator invocation.
// Results grow append-only; once Aborted is set the run is final and
// no further results may be appended.
type Run struct {
	ID          string       `json:"id"`
	Target      string       `json:"target"`
	Service     string       `json:"service"`
	Status      string       `json:"status"`
	Aborted     bool         `json:"aborted"`
	AbortReason string       `json:"abort_reason,omitempty"`
	Results     []StepResult `json:"results"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at,omitempty"`
}

// Append records a step result. Appending after the run has aborted is
// an error; a finalized run never grows.
func (r *Run) Append(res StepResult) error {
	if r.Aborted {
		return fmt.Errorf("run %s already aborted: %s", r.ID, r.AbortReason)
	}
	r.Results = append(r.Results, res)
	return nil
}

// Abort finalizes the run with a reason. The first reason wins; later
// calls are no-ops, so the aborted flag is never cleared or rewritten.
func (r *Run) Abort(reason string) {
	if r.Aborted {
		return
	}
	r.Aborted = true
	r.Status = RunAborted
	r.AbortReason = reason
	r.FinishedAt = time.Now().UTC()
}

// Complete marks the run as succeeded. A run that already aborted
// stays aborted.
func (r *Run) Complete() {
	if r.Aborted {
		return
	}
	r.Status = RunSucceeded
	r.FinishedAt = time.Now().UTC()
}

// NewRunID returns a sortable run identifier: a UTC timestamp plus a
// short random suffix so two runs in the same second stay distinct.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("run-%s-%s", now.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// NewRun creates a Run in the running state with a fresh ID.
func NewRun(target, service string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        NewRunID(now),
		Target:    target,
		Service:   service,
		Status:    RunRunning,
		Results:   []StepResult{},
		StartedAt: now,
	}
}
