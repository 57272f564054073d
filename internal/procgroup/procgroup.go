// SPDX-License-Identifier: MIT

// Package procgroup spawns external commands in their own process group and
// terminates the whole group, so a recorder never leaves orphaned children.
package procgroup

import (
	"os/exec"
)

// Set configures the command to start in a new process group.
// Mandatory for Terminate to reach the whole tree, not just the leader.
func Set(cmd *exec.Cmd) {
	set(cmd)
}
