package smoke

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

// startServer listens on a loopback port and optionally greets each
// connection with banner before closing it.
func startServer(t *testing.T, banner string) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if banner != "" {
				_, _ = conn.Write([]byte(banner + "\r\n"))
			}
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}
	return host, port
}

func TestRunConnectivity(t *testing.T) {
	host, port := startServer(t, "")

	results := Run(context.Background(), []Probe{
		{Name: "mx", Host: host, Port: port},
	}, time.Second)

	if len(results) != 1 {
		t.Fatalf("len(results) = %d", len(results))
	}
	if !results[0].OK {
		t.Errorf("probe failed: %v", results[0].Err)
	}
	if Failed(results) != 0 {
		t.Errorf("Failed = %d, want 0", Failed(results))
	}
}

func TestRunReadsBanner(t *testing.T) {
	host, port := startServer(t, "220 mail.example.com ESMTP ready")

	results := Run(context.Background(), []Probe{
		{Name: "mx", Host: host, Port: port, Banner: true},
	}, time.Second)

	if !results[0].OK {
		t.Fatalf("probe failed: %v", results[0].Err)
	}
	if results[0].Banner != "220 mail.example.com ESMTP ready" {
		t.Errorf("banner = %q", results[0].Banner)
	}
}

func TestRunClosedPort(t *testing.T) {
	// Grab a port, then close the listener so nothing is there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	results := Run(context.Background(), []Probe{
		{Name: "gone", Host: host, Port: port},
	}, 500*time.Millisecond)

	if results[0].OK {
		t.Fatal("probe passed against a closed port")
	}
	if Failed(results) != 1 {
		t.Errorf("Failed = %d, want 1", Failed(results))
	}
}

func TestRunBannerTimeout(t *testing.T) {
	// Server accepts but never writes a banner.
	host, port := func() (string, int) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { ln.Close() })
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				// Hold the connection open silently, then drop it.
				go func(c net.Conn) {
					time.Sleep(time.Second)
					c.Close()
				}(conn)
			}
		}()
		h, p, _ := net.SplitHostPort(ln.Addr().String())
		n, _ := strconv.Atoi(p)
		return h, n
	}()

	results := Run(context.Background(), []Probe{
		{Name: "silent", Host: host, Port: port, Banner: true},
	}, 100*time.Millisecond)

	if results[0].OK {
		t.Fatal("probe passed without a banner")
	}
	if !strings.Contains(results[0].Err.Error(), "banner") {
		t.Errorf("err = %v, want banner read error", results[0].Err)
	}
}

func TestRunContinuesPastFailures(t *testing.T) {
	host, port := startServer(t, "")
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	deadHost, deadPortStr, _ := net.SplitHostPort(ln.Addr().String())
	deadPort, _ := strconv.Atoi(deadPortStr)
	ln.Close()

	results := Run(context.Background(), []Probe{
		{Name: "dead", Host: deadHost, Port: deadPort},
		{Name: "live", Host: host, Port: port},
	}, 500*time.Millisecond)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].OK || !results[1].OK {
		t.Errorf("results = [%v %v], want [fail pass]", results[0].OK, results[1].OK)
	}
	if got := Summary(results); got != "smoke test failed: 1/2 probes failed" {
		t.Errorf("summary = %q", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	host, port := startServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Run(ctx, []Probe{{Name: "mx", Host: host, Port: port}}, time.Second)
	if results[0].OK {
		t.Fatal("probe passed with cancelled context")
	}
}
