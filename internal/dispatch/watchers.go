// SPDX-License-Identifier: MIT

package dispatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/watcher"
)

// WatcherService combines the watcher registry with the dispatcher: the
// registry entry is claimed before the job is enqueued, so a duplicate start
// is rejected without ever touching a queue.
type WatcherService struct {
	dispatcher *Dispatcher
	registry   *watcher.Registry
	logger     zerolog.Logger
}

func NewWatcherService(dispatcher *Dispatcher, registry *watcher.Registry) *WatcherService {
	return &WatcherService{
		dispatcher: dispatcher,
		registry:   registry,
		logger:     log.WithComponent("watchers"),
	}
}

// Start registers a new watcher for the payload's key and enqueues its job.
// If a watcher already holds the key, watcher.ErrWatcherExists is returned
// and nothing is dispatched.
func (s *WatcherService) Start(ctx context.Context, p WatchPayload) (string, error) {
	jobID := uuid.NewString()
	if err := s.registry.Create(ctx, p.Key, jobID); err != nil {
		return "", err
	}

	if _, err := s.dispatcher.SubmitWithID(ctx, jobID, KindWatchAndRecord, p); err != nil {
		// Release the key so a retry is possible.
		if _, delErr := s.registry.Delete(ctx, p.Key); delErr != nil {
			s.logger.Error().Err(delErr).Str(log.FieldKey, p.Key).
				Msg("rollback of watcher registration failed")
		}
		return "", err
	}

	s.logger.Info().Str(log.FieldKey, p.Key).Str(log.FieldJobID, jobID).Msg("watcher started")
	return jobID, nil
}

// Stop cancels the watcher holding key and removes its registry entry. The
// entry is removed even when cancellation delivery succeeds but the job has
// already exited; a missing entry yields WatcherNotFound.
func (s *WatcherService) Stop(ctx context.Context, key string) error {
	jobID, err := s.registry.Get(ctx, key)
	if err != nil {
		return err
	}
	if jobID == "" {
		return errcode.Newf(errcode.WatcherNotFound, "no watcher for key %q", key)
	}

	if err := s.dispatcher.Cancel(ctx, jobID); err != nil {
		return errcode.Wrap(errcode.WatcherStopFailed, "cancel watcher job", err).
			WithDetail("key", key)
	}

	if _, err := s.registry.Delete(ctx, key); err != nil {
		return errcode.Wrap(errcode.WatcherStopFailed, "remove watcher registration", err).
			WithDetail("key", key)
	}

	s.logger.Info().Str(log.FieldKey, key).Str(log.FieldJobID, jobID).Msg("watcher stopped")
	return nil
}

// List returns the active watcher map (key -> job ID).
func (s *WatcherService) List(ctx context.Context) (map[string]string, error) {
	return s.registry.List(ctx)
}
