// SPDX-License-Identifier: MIT

package capture

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/fsutil"
	"github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/metrics"
	"github.com/recwatch/recwatch/internal/supervisor"
)

// mtimeSkew tolerates filesystem timestamp granularity when correlating
// artifacts with the attempt window.
const mtimeSkew = time.Second

// Executor runs capture attempts through a Runner and diffs the output
// directory to discover produced artifacts. Failures never escape Execute;
// they are encoded into the attempt's exit code.
type Executor struct {
	runner Runner
	clock  func() time.Time
	logger zerolog.Logger

	// DefaultTimeout bounds unbounded captures; Buffer is added on top of
	// bounded ones.
	DefaultTimeout time.Duration
	Buffer         time.Duration
}

// NewExecutor creates an executor over the given runner.
func NewExecutor(runner Runner) *Executor {
	return &Executor{
		runner:         runner,
		clock:          time.Now,
		logger:         log.WithComponent("capture"),
		DefaultTimeout: supervisor.DefaultTimeout,
		Buffer:         300 * time.Second,
	}
}

// Execute performs one capture attempt. The authoritative created-files
// result is the set difference between a pre-attempt listing and a
// post-attempt listing restricted to [start−1s, end+1s], sorted
// lexicographically — independent of what the engine claims to have written.
func (e *Executor) Execute(ctx context.Context, req Request) Attempt {
	logger := log.WithContext(ctx, e.logger)

	before := map[string]struct{}{}
	if existing, err := fsutil.List(req.OutputDir); err == nil {
		for _, p := range existing {
			before[p] = struct{}{}
		}
	} else {
		logger.Warn().Err(err).Str("output_dir", req.OutputDir).Msg("pre-attempt listing failed")
	}

	start := e.clock()
	windowFrom := start.Add(-mtimeSkew)

	timeout := e.DefaultTimeout
	if req.Duration > 0 {
		timeout = req.Duration + e.Buffer
	}

	rc, err := e.runner.Capture(ctx, Spec{
		RoomID:    req.RoomID,
		URL:       req.URL,
		Duration:  req.Duration,
		OutputDir: req.OutputDir,
		Proxy:     req.Options.Proxy,
		Cookies:   req.Options.Cookies,
		Timeout:   timeout,
	})
	if err != nil {
		// Engine failures are encoded, never re-raised: partial artifacts
		// must still be detected below.
		logger.Error().Err(err).
			Str(log.FieldRoomID, req.RoomID).
			Str(log.FieldURL, req.URL).
			Msg("capture engine failed")
		if rc == 0 {
			rc = 1
		}
	}

	end := e.clock()
	windowTo := end.Add(mtimeSkew)

	created := e.diff(before, req.OutputDir, windowFrom, windowTo, logger)

	metrics.ObserveCapture(rc, end.Sub(start))
	logger.Info().
		Int(log.FieldExitCode, rc).
		Int("files_created", len(created)).
		Strs("files", created).
		Msg("capture attempt completed")

	return Attempt{ExitCode: rc, Files: created}
}

func (e *Executor) diff(before map[string]struct{}, dir string, from, to time.Time, logger zerolog.Logger) []string {
	after, err := fsutil.ListBetween(dir, from, to)
	if err != nil {
		logger.Warn().Err(err).Str("output_dir", dir).Msg("post-attempt listing failed")
		return []string{}
	}

	created := make([]string, 0, len(after))
	for _, p := range after {
		if _, existed := before[p]; !existed {
			created = append(created, p)
		}
	}
	sort.Strings(created)
	return created
}
