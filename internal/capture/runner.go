// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/supervisor"
)

// ProcessRunner invokes the external recorder binary under a fresh
// Supervisor per attempt. The supervisor is tracked in the process registry
// for the duration of the attempt so cancellation by job ID can reach it.
type ProcessRunner struct {
	// Binary is the recorder executable.
	Binary string
	// ExtraArgs are prepended to every invocation (e.g. a subcommand).
	ExtraArgs []string
	// Registry tracks the in-flight supervisor per job; optional.
	Registry *supervisor.Registry
}

// Capture runs one recorder invocation and returns its exit code. Plain
// non-zero exits are not errors; only timeouts, cancellation and spawn
// failures are.
func (r *ProcessRunner) Capture(ctx context.Context, spec Spec) (int, error) {
	sup := supervisor.New(spec.Timeout)

	if r.Registry != nil {
		if jobID := log.JobIDFromContext(ctx); jobID != "" {
			r.Registry.Register(jobID, sup)
			defer r.Registry.Unregister(jobID)
		}
	}

	args := append([]string{}, r.ExtraArgs...)
	if spec.RoomID != "" {
		args = append(args, "--room-id", spec.RoomID)
	}
	if spec.URL != "" {
		args = append(args, "--url", spec.URL)
	}
	if spec.Duration > 0 {
		args = append(args, "--duration", strconv.Itoa(int(spec.Duration/time.Second)))
	}
	args = append(args, "--output", spec.OutputDir)
	if spec.Proxy != "" {
		args = append(args, "--proxy", spec.Proxy)
	}

	env := os.Environ()
	if len(spec.Cookies) > 0 {
		// Credential data goes through the environment, never argv.
		if blob, err := json.Marshal(spec.Cookies); err == nil {
			env = append(env, "RECORDER_COOKIES="+string(blob))
		}
	}

	code, _, _, err := sup.Run(ctx, supervisor.Command{
		Name: r.Binary,
		Args: args,
		Dir:  spec.OutputDir,
		Env:  env,
	})
	return code, err
}
