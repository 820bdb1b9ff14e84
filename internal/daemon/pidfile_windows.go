//go:build windows

package daemon

import (
	"syscall"
)

// processExists reports whether a process with the given PID exists by
// opening it with the least access that allows the query.
func processExists(pid int) bool {
	const processQueryLimitedInformation = 0x1000

	h, err := syscall.OpenProcess(processQueryLimitedInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	syscall.CloseHandle(h)
	return true
}
