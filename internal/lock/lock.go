// Package lock serializes orchestrator runs per deployment target.
// Concurrent redeploys of the same target could interleave a stop or
// restart with another run's build, so a run holds a directory lock
// for its whole duration.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const staleAfter = 2 * time.Minute

type owner struct {
	PID       int    `json:"pid"`
	Target    string `json:"target"`
	StartedAt string `json:"started_at"`
}

// WithTargetLock runs fn while holding the lock for target under
// <stateDir>/locks. Acquisition polls until wait elapses, then fails
// naming the holder.
func WithTargetLock(stateDir, target string, wait time.Duration, fn func() error) error {
	release, err := acquire(stateDir, target, wait)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()
	return fn()
}

func lockDir(stateDir, target string) string {
	return filepath.Join(stateDir, "locks", target+".lock")
}

func acquire(stateDir, target string, wait time.Duration) (func() error, error) {
	dir := lockDir(stateDir, target)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir lock dir: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		if err := os.Mkdir(dir, 0o755); err == nil {
			// Owner metadata is best-effort; it only feeds stale-lock
			// decisions and error messages.
			o := owner{PID: os.Getpid(), Target: target, StartedAt: time.Now().UTC().Format(time.RFC3339)}
			if b, err := json.Marshal(o); err == nil {
				_ = os.WriteFile(filepath.Join(dir, "owner.json"), b, 0o644)
			}
			return func() error { return os.RemoveAll(dir) }, nil
		} else if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock for %s: %w", target, err)
		}

		// A crashed run leaves its lock behind. Break it only when it
		// is old and its owner process is gone.
		if isStale(dir, time.Now()) {
			_ = os.RemoveAll(dir)
			continue
		}

		if time.Now().After(deadline) {
			return nil, lockHeldError(dir, target)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func readOwner(dir string) (owner, bool) {
	raw, err := os.ReadFile(filepath.Join(dir, "owner.json"))
	if err != nil {
		return owner{}, false
	}
	var o owner
	if err := json.Unmarshal(raw, &o); err != nil || o.PID <= 0 {
		return owner{}, false
	}
	return o, true
}

func isStale(dir string, now time.Time) bool {
	info, err := os.Stat(dir)
	if err != nil {
		return false
	}
	if now.Sub(info.ModTime()) <= staleAfter {
		return false
	}
	if o, ok := readOwner(dir); ok && processAlive(o.PID) {
		return false
	}
	return true
}

func lockHeldError(dir, target string) error {
	if o, ok := readOwner(dir); ok {
		return fmt.Errorf("target %s is locked by pid %d (since %s)", target, o.PID, o.StartedAt)
	}
	return fmt.Errorf("target %s is locked: %s", target, dir)
}
