//go:build unix

package lock

import "golang.org/x/sys/unix"

// processAlive probes a pid with signal 0. EPERM means the process
// exists but belongs to someone else, which still counts as alive.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
