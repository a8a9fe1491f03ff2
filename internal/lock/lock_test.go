package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWithTargetLockRuns(t *testing.T) {
	stateDir := t.TempDir()
	ran := false
	err := WithTargetLock(stateDir, "prod", time.Second, func() error {
		ran = true
		// The lock directory exists while fn runs.
		if _, err := os.Stat(lockDir(stateDir, "prod")); err != nil {
			t.Errorf("lock dir missing during fn: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTargetLock: %v", err)
	}
	if !ran {
		t.Fatal("fn never ran")
	}
	if _, err := os.Stat(lockDir(stateDir, "prod")); !os.IsNotExist(err) {
		t.Errorf("lock dir not released: %v", err)
	}
}

func TestWithTargetLockReleasesOnError(t *testing.T) {
	stateDir := t.TempDir()
	wantErr := os.ErrClosed
	err := WithTargetLock(stateDir, "prod", time.Second, func() error { return wantErr })
	if err != wantErr {
		t.Fatalf("err = %v, want fn's error", err)
	}
	// A second acquisition must succeed immediately.
	if err := WithTargetLock(stateDir, "prod", 50*time.Millisecond, func() error { return nil }); err != nil {
		t.Fatalf("relock after error: %v", err)
	}
}

func TestContendedLockTimesOut(t *testing.T) {
	stateDir := t.TempDir()
	dir := lockDir(stateDir, "prod")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Held by this (alive) process.
	o := owner{PID: os.Getpid(), Target: "prod", StartedAt: "2026-01-01T00:00:00Z"}
	b, _ := json.Marshal(o)
	if err := os.WriteFile(filepath.Join(dir, "owner.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}

	err := WithTargetLock(stateDir, "prod", 60*time.Millisecond, func() error {
		t.Error("fn ran while target was locked")
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "locked by pid") {
		t.Fatalf("err = %v, want locked-by error", err)
	}
}

func TestDistinctTargetsDoNotContend(t *testing.T) {
	stateDir := t.TempDir()
	err := WithTargetLock(stateDir, "prod", time.Second, func() error {
		return WithTargetLock(stateDir, "staging", 50*time.Millisecond, func() error { return nil })
	})
	if err != nil {
		t.Fatalf("nested lock on different target: %v", err)
	}
}

func TestStaleLockIsBroken(t *testing.T) {
	stateDir := t.TempDir()
	dir := lockDir(stateDir, "prod")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Dead owner pid, old mtime: the lock belongs to a crashed run.
	o := owner{PID: 1 << 30, Target: "prod", StartedAt: "2026-01-01T00:00:00Z"}
	b, _ := json.Marshal(o)
	if err := os.WriteFile(filepath.Join(dir, "owner.json"), b, 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(dir, old, old); err != nil {
		t.Fatal(err)
	}

	err := WithTargetLock(stateDir, "prod", time.Second, func() error { return nil })
	if err != nil {
		t.Fatalf("stale lock not broken: %v", err)
	}
}

func TestFreshForeignLockIsRespected(t *testing.T) {
	stateDir := t.TempDir()
	dir := lockDir(stateDir, "prod")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	// No owner metadata and a fresh mtime: do not break it.
	err := WithTargetLock(stateDir, "prod", 60*time.Millisecond, func() error { return nil })
	if err == nil {
		t.Fatal("fresh lock was broken")
	}
}
