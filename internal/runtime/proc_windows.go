//go:build windows

package runtime

import "os/exec"

// Windows has no process groups or SIGTERM semantics worth relying on;
// teardown is a hard kill of the direct process.

func setProcessGroup(cmd *exec.Cmd) {}

func killTree(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
