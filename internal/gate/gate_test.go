package gate

import (
	"fmt"
	"strings"
	"testing"
)

func listing(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d Completed Migration file/files.\n", n)
	for i := 0; i < n; i++ {
		b.WriteString("20240101000000_migration.js\n")
	}
	return b.String()
}

func TestEvaluateThreshold(t *testing.T) {
	cfg := Config{MinCompleted: 5, Marker: ".js"}

	tests := []struct {
		name     string
		markers  int
		wantPass bool
	}{
		{"below threshold", 4, false},
		{"at threshold", 5, true},
		{"above threshold", 6, true},
		{"empty output", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(listing(tt.markers), cfg)
			if out.Pass != tt.wantPass {
				t.Errorf("pass = %v, want %v", out.Pass, tt.wantPass)
			}
			if out.Observed != tt.markers {
				t.Errorf("observed = %d, want %d", out.Observed, tt.markers)
			}
		})
	}
}

func TestEvaluateMarkerIsCaseSensitive(t *testing.T) {
	out := Evaluate("20240101_users.JS\n20240102_tokens.JS\n", Config{MinCompleted: 1, Marker: ".js"})
	if out.Observed != 0 {
		t.Errorf("observed = %d, want 0 for case mismatch", out.Observed)
	}
	if out.Pass {
		t.Error("pass = true, want false")
	}
}

func TestEvaluateCountsLinesNotOccurrences(t *testing.T) {
	out := Evaluate("a.js b.js c.js\n", Config{MinCompleted: 0, Marker: ".js"})
	if out.Observed != 1 {
		t.Errorf("observed = %d, want 1 (per line, not per occurrence)", out.Observed)
	}
}

func TestEvaluateZeroThresholdPasses(t *testing.T) {
	out := Evaluate("", Config{MinCompleted: 0, Marker: ".js"})
	if !out.Pass {
		t.Error("MinCompleted=0 with empty output should pass")
	}
}

func TestEvaluateRequiredMigration(t *testing.T) {
	output := listing(6)
	cfg := Config{MinCompleted: 5, Marker: ".js", Require: "20260801120000_add_dkim_keys.js"}

	out := Evaluate(output, cfg)
	if out.Pass || !out.MissingRequired {
		t.Errorf("outcome = %+v, want failure on missing required migration", out)
	}

	out = Evaluate(output+"20260801120000_add_dkim_keys.js\n", cfg)
	if !out.Pass || out.MissingRequired {
		t.Errorf("outcome = %+v, want pass with required migration present", out)
	}
}

func TestReason(t *testing.T) {
	cfg := Config{MinCompleted: 5, Marker: ".js"}
	out := Evaluate(listing(2), cfg)
	reason := out.Reason(cfg)
	want := "migration validation failed: observed 2 < expected 5"
	if reason != want {
		t.Errorf("reason = %q, want %q", reason, want)
	}
}

func TestReasonMissingRequired(t *testing.T) {
	cfg := Config{MinCompleted: 0, Marker: ".js", Require: "20260801_x.js"}
	out := Evaluate("", cfg)
	reason := out.Reason(cfg)
	if !strings.Contains(reason, "required migration") || !strings.Contains(reason, "20260801_x.js") {
		t.Errorf("reason = %q", reason)
	}
}
