// SPDX-License-Identifier: MIT

// Package watcher implements the long-running polling loop that resolves
// liveness of a target, records it when live, and applies exponential
// backoff with a hard failure ceiling — plus the shared registry that keeps
// at most one active watcher per watch key.
package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/capture"
	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/metrics"
	"github.com/recwatch/recwatch/internal/supervisor"
)

const (
	// maxConsecutiveErrors is the failure ceiling: the loop terminates with
	// a failure result when this many cycles fail in a row.
	maxConsecutiveErrors = 5

	// backoffCeiling caps the sleep between retries regardless of the
	// computed exponential backoff.
	backoffCeiling = 300 * time.Second

	// Default poll interval bounds, used when Config leaves them zero.
	defaultMinPollInterval = 10 * time.Second
	defaultMaxPollInterval = 3600 * time.Second
)

// ErrTooManyErrors terminates a watcher after the failure ceiling is hit.
var ErrTooManyErrors = errcode.New(errcode.InternalError, "too many consecutive watcher errors")

// CaptureExecutor runs one capture attempt; satisfied by *capture.Executor.
type CaptureExecutor interface {
	Execute(ctx context.Context, req capture.Request) capture.Attempt
}

// Config describes one watcher job.
type Config struct {
	Key          string // watch key (room ID or URL)
	RoomID       string
	URL          string
	PollInterval time.Duration // clamped to [MinPollInterval, MaxPollInterval]
	OutputDir    string
	Options      capture.Options

	// Poll interval bounds; zero values fall back to 10s / 3600s.
	MinPollInterval time.Duration
	MaxPollInterval time.Duration
}

// Deps are the watcher's collaborators.
type Deps struct {
	Resolver  capture.Resolver
	Executor  CaptureExecutor
	Processes *supervisor.Registry // released for this job on every exit path
	Clock     Clock                // defaults to RealClock
}

// Watcher is the polling state machine for one watch key. Single-threaded
// cooperative: it sleeps between cycles and captures synchronously.
type Watcher struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New creates a watcher, clamping the poll interval into its bounds.
func New(cfg Config, deps Deps) *Watcher {
	if cfg.MinPollInterval <= 0 {
		cfg.MinPollInterval = defaultMinPollInterval
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = defaultMaxPollInterval
	}
	if cfg.PollInterval < cfg.MinPollInterval {
		cfg.PollInterval = cfg.MinPollInterval
	}
	if cfg.PollInterval > cfg.MaxPollInterval {
		cfg.PollInterval = cfg.MaxPollInterval
	}
	if deps.Clock == nil {
		deps.Clock = RealClock{}
	}
	return &Watcher{cfg: cfg, deps: deps}
}

// Run executes the polling loop until the context is cancelled (clean stop,
// nil) or the consecutive-error ceiling is reached (ErrTooManyErrors).
// Owned process resources for this job are always released before returning.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger = log.WithComponentFromContext(ctx, "watcher")
	jobID := log.JobIDFromContext(ctx)

	if w.deps.Processes != nil {
		defer w.deps.Processes.CleanupJob(jobID)
	}

	w.logger.Info().
		Str(log.FieldKey, w.cfg.Key).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("watcher started")

	consecutiveErrors := 0
	for {
		// The only cancellation point besides the sleeps: latency is
		// bounded by one poll interval plus an in-flight capture.
		if ctx.Err() != nil {
			w.logger.Info().Msg("watcher aborted")
			return nil
		}

		err := w.cycle(ctx)
		switch {
		case err == nil:
			consecutiveErrors = 0
			metrics.IncWatcherCycle("ok")
			if !w.sleep(ctx, w.cfg.PollInterval) {
				w.logger.Info().Msg("watcher aborted")
				return nil
			}

		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			w.logger.Info().Msg("watcher aborted")
			return nil

		default:
			consecutiveErrors++
			backoff := Backoff(w.cfg.PollInterval, consecutiveErrors)

			w.logger.Error().Err(err).
				Int("consecutive_errors", consecutiveErrors).
				Dur("backoff", backoff).
				Msg("watcher cycle error")
			metrics.IncWatcherCycle("error")

			if consecutiveErrors >= maxConsecutiveErrors {
				w.logger.Error().
					Int("consecutive_errors", consecutiveErrors).
					Msg("too many consecutive errors, terminating watcher")
				return ErrTooManyErrors
			}

			metrics.ObserveWatcherBackoff(backoff)
			if !w.sleep(ctx, backoff) {
				w.logger.Info().Msg("watcher aborted")
				return nil
			}
		}
	}
}

// cycle performs one poll: resolve the room if needed, check liveness, and
// capture synchronously while live. A missing room ID and a non-zero capture
// result are both non-errors.
func (w *Watcher) cycle(ctx context.Context) error {
	rid := w.cfg.RoomID
	if rid == "" && w.cfg.URL != "" {
		resolved, err := w.deps.Resolver.ResolveRoom(ctx, w.cfg.URL)
		if err != nil {
			return err
		}
		rid = resolved
	}
	if rid == "" {
		// Nothing to watch yet; retry next interval.
		w.logger.Debug().Str(log.FieldURL, w.cfg.URL).Msg("room not resolved, retrying next poll")
		return nil
	}

	live, err := w.deps.Resolver.IsLive(ctx, rid)
	if err != nil {
		return err
	}
	if !live {
		return nil
	}

	w.logger.Info().Str(log.FieldRoomID, rid).Msg("live stream detected, starting recording")

	// Unbounded duration: the capture runs until the stream ends or the
	// supervisor's default ceiling kicks in.
	attempt := w.deps.Executor.Execute(ctx, capture.Request{
		RoomID:    rid,
		URL:       w.cfg.URL,
		OutputDir: w.cfg.OutputDir,
		Options:   w.cfg.Options,
	})

	w.logger.Info().
		Str(log.FieldRoomID, rid).
		Int(log.FieldExitCode, attempt.ExitCode).
		Strs("files", attempt.Files).
		Msg("watcher recording completed")

	// A failed capture is logged, not fatal to the loop.
	return nil
}

// sleep waits for d or until the context is cancelled; it reports false on
// cancellation.
func (w *Watcher) sleep(ctx context.Context, d time.Duration) bool {
	timer := w.deps.Clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-ctx.Done():
		return false
	}
}

// Backoff computes the sleep after the n-th consecutive failure:
// min(300s, interval × 2^n).
func Backoff(interval time.Duration, n int) time.Duration {
	backoff := interval
	for i := 0; i < n; i++ {
		backoff *= 2
		if backoff >= backoffCeiling {
			return backoffCeiling
		}
	}
	if backoff > backoffCeiling {
		return backoffCeiling
	}
	return backoff
}
