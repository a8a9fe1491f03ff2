package orchestrator

import (
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/mailward/redeploy/internal/command"
	"github.com/mailward/redeploy/internal/config"
	"github.com/mailward/redeploy/internal/pipeline"
)

// End-to-end over the real ExecRunner: every pipeline command is a
// small shell invocation, so the whole stop → build → migrate →
// validate → restart sequence runs for real.

func requireSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test requires a POSIX shell")
	}
}

func shDeploy(t *testing.T, migrations int) *config.Deploy {
	t.Helper()
	cfg := testDeploy(t)
	repoDir := t.TempDir()

	sh := func(script string) []string { return []string{"sh", "-c", script} }
	listScript := "i=0; while [ $i -lt " + strconv.Itoa(migrations) + " ]; do echo ${i}_migration.js; i=$((i+1)); done"

	cfg.Supervisor = config.Supervisor{
		Stop:    sh("echo stopped"),
		Restart: sh("echo restarted"),
		Save:    sh("echo saved"),
	}
	cfg.Repo = config.Repo{Dir: repoDir, Fetch: sh("echo fetched"), Reset: sh("echo reset")}
	cfg.Frontend = config.Project{Dir: repoDir, Install: sh("echo install"), Build: sh("echo build")}
	cfg.Backend = config.Project{Dir: repoDir, Install: sh("echo install"), Build: sh("echo build")}
	cfg.Migrations.Dir = repoDir
	cfg.Migrations.Run = sh("echo migrated")
	cfg.Migrations.List = sh(listScript)
	return cfg
}

func TestEndToEndSuccess(t *testing.T) {
	requireSh(t)
	cfg := shDeploy(t, 6)
	stateDir := t.TempDir()
	store := pipeline.NewStore(filepath.Join(stateDir, "runs"))
	o := New(&command.ExecRunner{}, store, nil, cfg, stateDir)

	var progress strings.Builder
	o.SetProgress(&progress)

	run, err := o.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if run.Aborted {
		t.Fatalf("run aborted: %s\nprogress:\n%s", run.AbortReason, progress.String())
	}

	// Raw stage output was archived.
	stdout, _, err := store.StepOutput(run.ID, StageRestart)
	if err != nil {
		t.Fatalf("StepOutput: %v", err)
	}
	if stdout != "restarted\n" {
		t.Errorf("restart stdout = %q", stdout)
	}
	if !strings.Contains(progress.String(), "SUCCEEDED") {
		t.Errorf("progress missing banner:\n%s", progress.String())
	}
}

func TestEndToEndGateFailure(t *testing.T) {
	requireSh(t)
	cfg := shDeploy(t, 2)
	stateDir := t.TempDir()
	store := pipeline.NewStore(filepath.Join(stateDir, "runs"))
	o := New(&command.ExecRunner{}, store, nil, cfg, stateDir)

	run, err := o.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !run.Aborted {
		t.Fatal("run not aborted")
	}
	if run.AbortReason != "migration validation failed: observed 2 < expected 5" {
		t.Errorf("abort reason = %q", run.AbortReason)
	}

	// The archived run record agrees with the returned one.
	stored, err := store.Get(run.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.Aborted || stored.AbortReason != run.AbortReason {
		t.Errorf("stored = %+v", stored)
	}
	for _, res := range stored.Results {
		if res.Name == StageRestart {
			t.Error("restart-service has a recorded result after abort")
		}
	}
}

func TestEndToEndRerunAfterAbort(t *testing.T) {
	requireSh(t)
	cfg := shDeploy(t, 2)
	stateDir := t.TempDir()
	store := pipeline.NewStore(filepath.Join(stateDir, "runs"))

	o := New(&command.ExecRunner{}, store, nil, cfg, stateDir)
	first, err := o.Execute(context.Background())
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if !first.Aborted {
		t.Fatal("first run should have aborted")
	}

	cfg.Migrations.List = []string{"sh", "-c", "i=0; while [ $i -lt 6 ]; do echo ${i}_migration.js; i=$((i+1)); done"}
	second, err := New(&command.ExecRunner{}, store, nil, cfg, stateDir).Execute(context.Background())
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if second.Aborted {
		t.Fatalf("second run aborted: %s", second.AbortReason)
	}
	if second.ID == first.ID {
		t.Error("reruns must be fresh invocations with new IDs")
	}
}
