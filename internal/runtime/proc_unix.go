//go:build unix

package runtime

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

const (
	termGrace = 800 * time.Millisecond
	killGrace = 500 * time.Millisecond
)

// setProcessGroup gives the child its own process group so a group signal
// reaches the whole tool tree without touching the gateway.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killTree ends a tool instance: SIGTERM to the group, a grace window for
// cleanup, then SIGKILL for whatever is left.
func killTree(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid

	// Only signal a group the child actually leads.
	pgid, err := syscall.Getpgid(pid)
	if err != nil || pgid != pid {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		if !waitForExit(cmd.Process, killGrace) {
			_ = cmd.Process.Kill()
		}
		return
	}

	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	if waitForExit(cmd.Process, termGrace) {
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	_ = waitForExit(cmd.Process, killGrace)
}

// waitForExit polls with Signal(0) until the process is gone or the window
// closes. Signal(0) sends nothing; an error means the process has exited.
func waitForExit(p *os.Process, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if err := p.Signal(syscall.Signal(0)); err != nil {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
