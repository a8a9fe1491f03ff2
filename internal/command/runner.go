package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// Spec describes one external command invocation. Commands are argv
// vectors executed directly — never through a shell.
type Spec struct {
	Name string            // stage name, used in errors and logs
	Argv []string          // Argv[0] is the binary
	Dir  string            // working directory; empty inherits the caller's
	Env  map[string]string // appended to the parent environment
}

// Result holds the structured outcome of a command that was started and
// waited for. A nonzero exit code is a normal Result, never an error.
type Result struct {
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"stdout,omitempty"`
	Stderr     string    `json:"stderr,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall-clock time the command ran for.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// LaunchError reports a command that could not be started at all:
// missing binary, invalid working directory, or an empty argv.
type LaunchError struct {
	Name string
	Argv []string
	Err  error
}

func (e *LaunchError) Error() string {
	if len(e.Argv) == 0 {
		return fmt.Sprintf("launch %s: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("launch %s (%s): %v", e.Name, strings.Join(e.Argv, " "), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Runner abstracts command execution for testability.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// ExecRunner implements Runner with os/exec. It spawns exactly one
// process per call and blocks until it terminates; cancelling the
// context kills the process. There are no retries and no implicit
// timeout — callers own the context.
type ExecRunner struct{}

func (e *ExecRunner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if len(spec.Argv) == 0 {
		return nil, &LaunchError{Name: spec.Name, Err: errors.New("empty argv")}
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = mergedEnv(spec.Env)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startedAt := time.Now().UTC()
	err := cmd.Run()
	finishedAt := time.Now().UTC()

	result := &Result{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Ran and exited nonzero (or was killed): report via Result.
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, &LaunchError{Name: spec.Name, Argv: spec.Argv, Err: err}
	}
	return result, nil
}

// mergedEnv appends the overrides to the parent environment in sorted
// key order. Nil means "inherit unchanged" to os/exec.
func mergedEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := os.Environ()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}
