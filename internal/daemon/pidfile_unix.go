//go:build unix

package daemon

import (
	"syscall"
)

// processExists reports whether a process with the given PID exists.
// Signal 0 probes for existence without delivering anything.
func processExists(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil
}
