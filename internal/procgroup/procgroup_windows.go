// SPDX-License-Identifier: MIT

//go:build windows

package procgroup

import (
	"os/exec"
	"syscall"
)

// Kill sends a signal to the process on Windows. Signals are not fully
// supported there, so SIGKILL maps to Process.Kill and SIGTERM is a no-op.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if sig == syscall.SIGKILL {
		return cmd.Process.Kill()
	}
	return nil
}
