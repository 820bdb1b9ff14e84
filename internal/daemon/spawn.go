package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// DaemonBinary is the name of the daemon executable, expected to sit
// next to the CLI binary.
const DaemonBinary = "sksurgerybkd"

// EnsureRunning starts the daemon if the pidfile says nothing is
// alive, then waits for the control socket to appear.
func EnsureRunning(socketPath, pidPath string) error {
	pidFile := NewPIDFile(pidPath)
	if pidFile.IsProcessAlive() {
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}
	}

	if err := spawn(); err != nil {
		return err
	}
	return WaitReady(socketPath, 10*time.Second)
}

func spawn() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	daemonPath := filepath.Join(filepath.Dir(execPath), DaemonBinary)

	cmd := exec.Command(daemonPath)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// The daemon manages its own lifetime from here.
	go cmd.Wait()
	return nil
}

// WaitReady polls for the control socket.
func WaitReady(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("daemon socket not ready after %v", timeout)
}
