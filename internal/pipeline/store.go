package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store archives runs on disk. Each run gets its own directory holding
// run.json plus the raw stdout/stderr of every step.
type Store struct {
	baseDir string // defaults to ~/.redeploy/runs
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at <stateDir>/runs, creating the
// directory if needed.
func DefaultStore(stateDir string) (*Store, error) {
	dir := filepath.Join(stateDir, "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// DefaultStateDir returns ~/.redeploy, creating it if needed.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".redeploy")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

func (s *Store) runDir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) runPath(id string) string {
	return filepath.Join(s.runDir(id), "run.json")
}

// StepOutputDir returns the directory holding a step's raw output.
func (s *Store) StepOutputDir(id, step string) string {
	return filepath.Join(s.runDir(id), "steps", step)
}

// Create persists a new run. The run directory must not already exist.
func (s *Store) Create(run *Run) error {
	dir := s.runDir(run.ID)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	if err := os.MkdirAll(filepath.Join(dir, "steps"), 0o755); err != nil {
		return fmt.Errorf("mkdir run dir: %w", err)
	}
	return WriteJSON(s.runPath(run.ID), run)
}

// Get reads a run by ID.
func (s *Store) Get(id string) (*Run, error) {
	var run Run
	if err := ReadJSON(s.runPath(id), &run); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, err
	}
	return &run, nil
}

// Update rewrites the run record atomically.
func (s *Store) Update(run *Run) error {
	return WriteJSON(s.runPath(run.ID), run)
}

// SaveStepOutput writes a step's captured stdout and stderr as raw
// files so run.json stays small and outputs stay greppable.
func (s *Store) SaveStepOutput(id string, res *StepResult) error {
	dir := s.StepOutputDir(id, res.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir step output dir: %w", err)
	}
	if err := WriteAtomic(filepath.Join(dir, "stdout.txt"), []byte(res.Stdout)); err != nil {
		return err
	}
	return WriteAtomic(filepath.Join(dir, "stderr.txt"), []byte(res.Stderr))
}

// StepOutput reads back a step's saved stdout and stderr.
func (s *Store) StepOutput(id, step string) (stdout, stderr string, err error) {
	dir := s.StepOutputDir(id, step)
	out, err := os.ReadFile(filepath.Join(dir, "stdout.txt"))
	if err != nil {
		return "", "", err
	}
	errOut, err := os.ReadFile(filepath.Join(dir, "stderr.txt"))
	if err != nil {
		return "", "", err
	}
	return string(out), string(errOut), nil
}

// List returns all runs, newest first, optionally filtered by status.
// Pass "" to return every run.
func (s *Store) List(statusFilter string) ([]Run, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var runs []Run
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "run-") {
			continue
		}
		run, err := s.Get(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		if statusFilter == "" || run.Status == statusFilter {
			runs = append(runs, *run)
		}
	}

	// Run IDs embed a UTC timestamp, so lexical order is time order.
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].ID > runs[j].ID
	})
	return runs, nil
}

// Latest returns the most recent run, or nil if the store is empty.
func (s *Store) Latest() (*Run, error) {
	runs, err := s.List("")
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Delete removes all data for a run.
func (s *Store) Delete(id string) error {
	dir := s.runDir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("run %s not found", id)
	}
	return os.RemoveAll(dir)
}

// Prune deletes all but the newest keep runs and returns the IDs it
// removed.
func (s *Store) Prune(keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	runs, err := s.List("")
	if err != nil {
		return nil, err
	}
	if len(runs) <= keep {
		return nil, nil
	}

	var removed []string
	for _, run := range runs[keep:] {
		if err := s.Delete(run.ID); err != nil {
			return removed, err
		}
		removed = append(removed, run.ID)
	}
	return removed, nil
}
