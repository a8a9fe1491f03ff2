package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test requires a POSIX shell")
	}
}

func TestExecRunnerCapturesOutput(t *testing.T) {
	requireSh(t)
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Spec{
		Name: "capture",
		Argv: []string{"sh", "-c", "echo out; echo err 1>&2"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "out\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "out\n")
	}
	if res.Stderr != "err\n" {
		t.Errorf("stderr = %q, want %q", res.Stderr, "err\n")
	}
	if res.FinishedAt.Before(res.StartedAt) {
		t.Errorf("finished %v before started %v", res.FinishedAt, res.StartedAt)
	}
}

func TestExecRunnerNonzeroExitIsNotAnError(t *testing.T) {
	requireSh(t)
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Spec{
		Name: "nonzero",
		Argv: []string{"sh", "-c", "exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Spec{
		Name: "missing",
		Argv: []string{"redeploy-test-no-such-binary"},
	})
	if res != nil {
		t.Fatalf("expected nil result, got %+v", res)
	}
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %T: %v", err, err)
	}
	if launchErr.Name != "missing" {
		t.Errorf("LaunchError.Name = %q, want %q", launchErr.Name, "missing")
	}
}

func TestExecRunnerEmptyArgv(t *testing.T) {
	r := &ExecRunner{}

	_, err := r.Run(context.Background(), Spec{Name: "empty"})
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("expected LaunchError, got %T: %v", err, err)
	}
}

func TestExecRunnerEnvOverride(t *testing.T) {
	requireSh(t)
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Spec{
		Name: "env",
		Argv: []string{"sh", "-c", "echo $REDEPLOY_TEST_VAR"},
		Env:  map[string]string{"REDEPLOY_TEST_VAR": "hello"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestExecRunnerWorkingDir(t *testing.T) {
	requireSh(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := &ExecRunner{}

	res, err := r.Run(context.Background(), Spec{
		Name: "dir",
		Argv: []string{"ls"},
		Dir:  dir,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stdout != "marker.txt\n" {
		t.Errorf("stdout = %q, want %q", res.Stdout, "marker.txt\n")
	}
}

func TestExecRunnerContextCancelKillsProcess(t *testing.T) {
	requireSh(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r := &ExecRunner{}

	start := time.Now()
	res, err := r.Run(ctx, Spec{
		Name: "sleepy",
		Argv: []string{"sleep", "30"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode == 0 {
		t.Errorf("exit code = 0, want nonzero after kill")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("process not killed promptly, took %v", elapsed)
	}
	if ctx.Err() == nil {
		t.Error("context error not set after timeout")
	}
}
