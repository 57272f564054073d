// SPDX-License-Identifier: MIT

//go:build !linux

package procgroup

import (
	"os/exec"
)

// Best effort on non-linux systems: without Setpgid only the root process
// can be signalled.
func set(cmd *exec.Cmd) {}
