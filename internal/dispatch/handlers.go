// SPDX-License-Identifier: MIT

package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/recwatch/recwatch/internal/capture"
	"github.com/recwatch/recwatch/internal/cookies"
	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/supervisor"
	"github.com/recwatch/recwatch/internal/uploader"
	"github.com/recwatch/recwatch/internal/watcher"
)

// JobDeps wires the supervision core into the job handlers.
type JobDeps struct {
	Executor      watcher.CaptureExecutor
	Resolver      capture.Resolver
	Sidecar       *uploader.Sidecar
	Watchers      *watcher.Registry
	Processes     *supervisor.Registry
	RecordingsDir string
	Clock         func() time.Time // defaults to time.Now
	Timers        watcher.Clock    // watcher sleep source; defaults to wall clock

	// Poll interval bounds applied to every watcher; zero uses the
	// watcher defaults.
	MinPollInterval time.Duration
	MaxPollInterval time.Duration
}

// RegisterHandlers installs the record_once and watch_and_record handlers.
func RegisterHandlers(w *Worker, deps JobDeps) {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	w.Handle(KindRecordOnce, recordOnceHandler(deps))
	w.Handle(KindWatchAndRecord, watchAndRecordHandler(deps))
}

// recordOnceHandler runs one capture attempt and builds the terminal result.
// It never returns an error: every failure is encoded into the result.
func recordOnceHandler(deps JobDeps) Handler {
	return func(ctx context.Context, task Task) (any, error) {
		startedAt := deps.Clock()

		var p RecordOncePayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return capture.BuildResult(capture.Attempt{ExitCode: 1}, nil, startedAt, deps.Clock(),
				errcode.ValidationError, err.Error()), nil
		}

		ctx = log.ContextWithTarget(ctx, p.RoomID, p.URL)
		logger := log.WithComponentFromContext(ctx, "record_once")

		bundle, err := cookies.Load(p.Options.Cookies)
		if err != nil {
			logger.Error().Err(err).Msg("cookie bundle rejected")
			return capture.BuildResult(capture.Attempt{ExitCode: 1}, nil, startedAt, deps.Clock(),
				errcode.KindOf(err), err.Error()), nil
		}

		logger.Info().
			Int("duration", p.DurationSeconds).
			Str("output_dir", deps.RecordingsDir).
			Msg("recording task started")

		attempt := deps.Executor.Execute(ctx, capture.Request{
			RoomID:    p.RoomID,
			URL:       p.URL,
			Duration:  time.Duration(p.DurationSeconds) * time.Second,
			OutputDir: deps.RecordingsDir,
			Options: capture.Options{
				Proxy:    p.Options.Proxy,
				Cookies:  bundle,
				UploadS3: p.Options.UploadS3,
			},
		})
		endedAt := deps.Clock()

		var uploads []uploader.Outcome
		if p.Options.UploadS3 && len(attempt.Files) > 0 && deps.Sidecar != nil {
			// Best effort: outcomes are recorded in the result, but upload
			// failures never fail the capture job.
			uploads = <-deps.Sidecar.Start(ctx, deps.Sidecar.Prefix(p.RoomID), attempt.Files)
		}

		return capture.BuildResult(attempt, uploads, startedAt, endedAt, "", ""), nil
	}
}

// watchAndRecordHandler runs the watcher state machine for one watch key.
// The registry entry is removed on every exit path so a stopped watcher can
// be recreated.
func watchAndRecordHandler(deps JobDeps) Handler {
	return func(ctx context.Context, task Task) (any, error) {
		var p WatchPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return WatchResult{OK: false, Error: err.Error()}, err
		}

		ctx = log.ContextWithTarget(ctx, p.RoomID, p.URL)

		defer func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := deps.Watchers.Delete(cleanupCtx, p.Key); err != nil {
				logger := log.WithComponent("watch_and_record")
				logger.Warn().Err(err).
					Str(log.FieldKey, p.Key).Msg("watcher registry cleanup failed")
			}
		}()

		bundle, err := cookies.Load(p.Options.Cookies)
		if err != nil {
			return WatchResult{OK: false, Error: err.Error()}, err
		}

		w := watcher.New(watcher.Config{
			Key:             p.Key,
			RoomID:          p.RoomID,
			URL:             p.URL,
			PollInterval:    time.Duration(p.PollIntervalSeconds) * time.Second,
			MinPollInterval: deps.MinPollInterval,
			MaxPollInterval: deps.MaxPollInterval,
			OutputDir:       deps.RecordingsDir,
			Options: capture.Options{
				Proxy:    p.Options.Proxy,
				Cookies:  bundle,
				UploadS3: p.Options.UploadS3,
			},
		}, watcher.Deps{
			Resolver:  deps.Resolver,
			Executor:  deps.Executor,
			Processes: deps.Processes,
			Clock:     deps.Timers,
		})

		if err := w.Run(ctx); err != nil {
			return WatchResult{OK: false, Error: err.Error()}, err
		}
		return WatchResult{OK: true}, nil
	}
}
