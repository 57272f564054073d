// SPDX-License-Identifier: MIT

package procgroup

import (
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/recwatch/recwatch/internal/metrics"
)

// Terminate gracefully stops a process group. It sends SIGTERM, waits for
// the process to exit (via the provided wait channel), and if it doesn't
// exit within grace, sends SIGKILL. It consumes and returns the error from
// waitCh. Safe to call on nil commands (returns nil).
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	// A process that already finished makes the Kill calls harmless no-ops.
	if err := Kill(cmd, syscall.SIGTERM); err == nil {
		metrics.IncProcTerminate("SIGTERM", "sent")
	} else if alreadyGone(err) {
		metrics.IncProcTerminate("SIGTERM", "esrch")
	} else {
		metrics.IncProcTerminate("SIGTERM", "error")
	}

	select {
	case err := <-waitCh:
		// Exited voluntarily or due to SIGTERM.
		if err == nil {
			metrics.IncProcWait("exit0")
		} else {
			metrics.IncProcWait("exit_nonzero")
		}
		return err
	case <-time.After(grace):
		if err := Kill(cmd, syscall.SIGKILL); err == nil {
			metrics.IncProcTerminate("SIGKILL", "sent")
		} else if alreadyGone(err) {
			metrics.IncProcTerminate("SIGKILL", "esrch")
		} else {
			metrics.IncProcTerminate("SIGKILL", "error")
		}

		// Always drain waitCh; SIGKILL frees a blocked Wait.
		err := <-waitCh
		if err == nil {
			metrics.IncProcWait("forced_exit0")
		} else {
			metrics.IncProcWait("forced_error")
		}
		return err
	}
}

func alreadyGone(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "process already finished") ||
		strings.Contains(err.Error(), "no such process")
}
