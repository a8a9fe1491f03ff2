// Package smoke runs post-deploy reachability probes against the
// redeployed service: TCP connect, optionally reading the one-line
// server greeting (the SMTP banner, for a mail host).
package smoke

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultTimeout bounds a single probe's dial and banner read.
const DefaultTimeout = 10 * time.Second

// Probe names one port to verify.
type Probe struct {
	Name   string
	Host   string
	Port   int
	Banner bool // read the greeting line after connecting
}

// Result is the outcome of a single probe.
type Result struct {
	Probe   Probe
	OK      bool
	Banner  string
	Latency time.Duration
	Err     error
}

// Run executes every probe in order and returns one Result each.
// Probes after a failure still run; the caller decides whether any
// failure is fatal.
func Run(ctx context.Context, probes []Probe, timeout time.Duration) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	results := make([]Result, 0, len(probes))
	for _, p := range probes {
		if ctx.Err() != nil {
			results = append(results, Result{Probe: p, Err: ctx.Err()})
			continue
		}
		results = append(results, run(ctx, p, timeout))
	}
	return results
}

func run(ctx context.Context, p Probe, timeout time.Duration) Result {
	res := Result{Probe: p}
	addr := fmt.Sprintf("%s:%d", p.Host, p.Port)

	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("dial %s: %w", addr, err)
		return res
	}
	defer conn.Close()

	if p.Banner {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			res.Err = fmt.Errorf("read banner from %s: %w", addr, err)
			return res
		}
		res.Banner = strings.TrimRight(line, "\r\n")
	}

	res.OK = true
	return res
}

// Failed counts the probes that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.OK {
			n++
		}
	}
	return n
}

// Summary renders the abort reason used when a smoke stage fails.
func Summary(results []Result) string {
	return fmt.Sprintf("smoke test failed: %d/%d probes failed", Failed(results), len(results))
}
