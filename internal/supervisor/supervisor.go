// SPDX-License-Identifier: MIT

// Package supervisor runs one external recorder process to completion while
// enforcing a wall-clock timeout and guaranteeing the whole process tree is
// reaped on timeout, cancellation or caller-requested stop.
package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/procgroup"
)

const (
	// DefaultTimeout bounds a capture process when the caller sets none.
	DefaultTimeout = 3600 * time.Second

	// termGrace is how long Terminate waits for voluntary exit after
	// SIGTERM before escalating to SIGKILL.
	termGrace = 10 * time.Second
)

// watchdogInterval is how often the watchdog polls process liveness.
// Variable so tests can tighten the loop.
var watchdogInterval = 5 * time.Second

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // nil inherits the daemon environment
}

// Supervisor owns a single external process. One instance supervises one
// attempt; calling Run again after it returned is undefined.
type Supervisor struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	terminated bool

	waitCh   chan error    // delivers the wait error once; consumed by Terminate
	waitErr  error         // valid after exited is closed
	exited   chan struct{} // closed once the wait goroutine reaped the process
	timedOut atomic.Bool
}

// New creates a supervisor with the given wall-clock timeout.
// A zero or negative timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Supervisor{
		timeout: timeout,
		logger:  log.WithComponent("supervisor"),
		waitCh:  make(chan error, 1),
		exited:  make(chan struct{}),
	}
}

// Run executes the command to completion and returns its exit code along
// with captured stdout/stderr. The process is started in its own process
// group; a watchdog enforces the configured timeout. A non-nil error is
// returned for timeouts and cancellations; plain non-zero exits return a
// nil error and the code.
func (s *Supervisor) Run(ctx context.Context, command Command) (int, string, string, error) {
	logger := log.WithContext(ctx, s.logger)

	cmd := exec.Command(command.Name, command.Args...)
	cmd.Dir = command.Dir
	cmd.Env = command.Env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	procgroup.Set(cmd)

	logger.Info().
		Str("command", command.Name).
		Int("args", len(command.Args)).
		Dur("timeout", s.timeout).
		Str("dir", command.Dir).
		Msg("starting subprocess")

	if err := cmd.Start(); err != nil {
		defer s.Cleanup()
		if errors.Is(err, exec.ErrNotFound) {
			// Same observable outcome as a shell's "command not found".
			logger.Error().Err(err).Str("command", command.Name).Msg("recorder binary not found")
			return 127, "", "", nil
		}
		return 1, "", "", errcode.Wrap(errcode.InternalError, "start process", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	start := time.Now()
	go func() {
		err := cmd.Wait()
		s.waitErr = err
		s.waitCh <- err
		close(s.exited)
	}()
	go s.watchdog(start)

	defer s.Cleanup()

	select {
	case <-s.exited:
	case <-ctx.Done():
		logger.Info().Int(log.FieldPID, cmd.Process.Pid).Msg("context cancelled, terminating process tree")
		s.Terminate()
		<-s.exited
		code := exitCode(s.waitErr)
		return code, stdout.String(), stderr.String(), ctx.Err()
	}

	code := exitCode(s.waitErr)

	if s.timedOut.Load() {
		logger.Error().
			Int(log.FieldPID, cmd.Process.Pid).
			Dur("timeout", s.timeout).
			Msg("process timeout exceeded")
		return code, stdout.String(), stderr.String(),
			errcode.Newf(errcode.NetworkTimeout, "process timeout exceeded after %s", s.timeout)
	}

	logger.Info().
		Int(log.FieldPID, cmd.Process.Pid).
		Int(log.FieldExitCode, code).
		Int("stdout_bytes", stdout.Len()).
		Int("stderr_bytes", stderr.Len()).
		Msg("subprocess completed")

	return code, stdout.String(), stderr.String(), nil
}

// watchdog polls process liveness at a fixed interval and terminates the
// tree once the elapsed wall-clock time exceeds the timeout. It only
// observes; the single mutation it performs is invoking Terminate.
func (s *Supervisor) watchdog(start time.Time) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.exited:
			return
		case <-ticker.C:
			if elapsed := time.Since(start); elapsed > s.timeout {
				s.logger.Warn().
					Dur("elapsed", elapsed).
					Dur("timeout", s.timeout).
					Msg("watchdog triggering timeout")
				s.timedOut.Store(true)
				s.Terminate()
				return
			}
		}
	}
}

// Terminate gracefully stops the process and all of its descendants:
// SIGTERM to the group, up to 10s for voluntary exit, then SIGKILL.
// It is idempotent and a no-op once the process has been reaped.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	if s.terminated || s.cmd == nil || s.cmd.Process == nil {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	cmd := s.cmd
	s.mu.Unlock()

	select {
	case <-s.exited:
		// Already gone; nothing to signal.
		return
	default:
	}

	pid := cmd.Process.Pid
	s.logger.Info().Int(log.FieldPID, pid).Msg("terminating process tree")
	// Blocks until the wait goroutine has reaped the process. The returned
	// error is the wait error (signal death for a killed tree), not a
	// termination failure.
	if err := procgroup.Terminate(cmd, s.waitCh, termGrace); err != nil {
		s.logger.Debug().Err(err).Int(log.FieldPID, pid).Msg("process exited after termination")
	}
}

// Cleanup releases the supervisor's handle on the process. It runs on every
// Run exit path and terminates the process first if it is still alive.
func (s *Supervisor) Cleanup() {
	s.mu.Lock()
	alive := s.cmd != nil && s.cmd.Process != nil && !s.terminated
	s.mu.Unlock()

	if alive {
		select {
		case <-s.exited:
		default:
			s.Terminate()
		}
	}

	s.mu.Lock()
	s.cmd = nil
	s.terminated = false
	s.mu.Unlock()
}

// exitCode derives the process exit code from the wait error.
func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
		// Killed by signal.
		return 1
	}
	return 1
}
