package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mailward/redeploy/internal/gate"
)

// Load reads and parses a deployment configuration from the given YAML
// file path, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches standard locations and loads the first config
// found. Search order: ./redeploy.yaml, ~/.redeploy/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"redeploy.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".redeploy", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no deployment config found (searched: %v)", candidates)
}

// applyDefaults fills in values the file may omit.
func applyDefaults(cfg *Config) {
	d := &cfg.Deploy

	if d.Target == "" {
		d.Target = "default"
	}
	if d.LockWait == "" {
		d.LockWait = "30s"
	}
	if d.Migrations.MinCompleted == nil {
		n := gate.DefaultMinCompleted
		d.Migrations.MinCompleted = &n
	}
	if d.Keys.DirMode == "" {
		d.Keys.DirMode = "750"
	}
	if d.Keys.FileMode == "" {
		d.Keys.FileMode = "600"
	}
	if d.Smoke.Timeout == "" {
		d.Smoke.Timeout = "10s"
	}
}

// ResolveStateDir resolves the configured state directory, defaulting
// to ~/.redeploy, and creates it if needed.
func (d *Deploy) ResolveStateDir() (string, error) {
	if d.StateDir != "" {
		if err := os.MkdirAll(d.StateDir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", d.StateDir, err)
		}
		return d.StateDir, nil
	}
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

// ParsedStepTimeout returns the per-step timeout, 0 meaning unbounded.
func (d *Deploy) ParsedStepTimeout() (time.Duration, error) {
	return parseDuration(d.StepTimeout, "step_timeout")
}

// ParsedLockWait returns how long to wait for the target lock.
func (d *Deploy) ParsedLockWait() (time.Duration, error) {
	return parseDuration(d.LockWait, "lock_wait")
}

// ParsedTimeout returns the per-probe smoke timeout.
func (s *Smoke) ParsedTimeout() (time.Duration, error) {
	return parseDuration(s.Timeout, "smoke.timeout")
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return dur, nil
}

// ParsedDirMode returns the octal directory mode from the keys config.
func (k *Keys) ParsedDirMode() (os.FileMode, error) {
	return parseMode(k.DirMode, "keys.dir_mode")
}

// ParsedFileMode returns the octal file mode from the keys config.
func (k *Keys) ParsedFileMode() (os.FileMode, error) {
	return parseMode(k.FileMode, "keys.file_mode")
}

func parseMode(s, field string) (os.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, s, err)
	}
	return os.FileMode(n), nil
}
