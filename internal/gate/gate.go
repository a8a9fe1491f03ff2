// Package gate implements the migration validation checkpoint: the
// pipeline refuses to restart the service over an incompletely
// migrated schema.
package gate

import (
	"fmt"
	"strings"
)

// DefaultMinCompleted is the fallback completed-migration threshold.
const DefaultMinCompleted = 5

// Config controls how migration-runner output is judged.
type Config struct {
	// MinCompleted is the minimum number of marker lines required to
	// pass. Must be >= 0.
	MinCompleted int
	// Marker is a case-sensitive literal counted once per line that
	// contains it (e.g. ".js" for a Knex migration listing).
	Marker string
	// Require, when set, is a literal that must appear on some line —
	// typically the identifier of the last migration expected to be
	// applied. This is sturdier than a raw count when the migration
	// tool exposes one.
	Require string
}

// Outcome is the result of evaluating migration output.
type Outcome struct {
	Pass            bool
	Observed        int
	MissingRequired bool
}

// Evaluate counts lines of output containing cfg.Marker and checks the
// optional required literal. Pass requires Observed >= cfg.MinCompleted
// and, when cfg.Require is set, at least one line containing it.
func Evaluate(output string, cfg Config) Outcome {
	out := Outcome{}
	for _, line := range strings.Split(output, "\n") {
		if cfg.Marker != "" && strings.Contains(line, cfg.Marker) {
			out.Observed++
		}
	}

	if cfg.Require != "" && !strings.Contains(output, cfg.Require) {
		out.MissingRequired = true
	}

	out.Pass = out.Observed >= cfg.MinCompleted && !out.MissingRequired
	return out
}

// Reason renders the abort reason for a failed outcome. The observed
// count goes first because it is what operators grep run history for.
func (o Outcome) Reason(cfg Config) string {
	if o.MissingRequired {
		return fmt.Sprintf("migration validation failed: required migration %q not found (observed %d)", cfg.Require, o.Observed)
	}
	return fmt.Sprintf("migration validation failed: observed %d < expected %d", o.Observed, cfg.MinCompleted)
}
