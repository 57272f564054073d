// SPDX-License-Identifier: MIT

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/recwatch/recwatch/internal/log"
	"github.com/recwatch/recwatch/internal/supervisor"
)

// Handler executes one job and returns its result payload. A returned error
// marks the job failed; the payload is stored either way when non-nil.
type Handler func(ctx context.Context, task Task) (any, error)

// Worker drains the job queues with a bounded pool of goroutines. Each job
// runs under its own cancellable context; cancellation requests arrive over
// pub/sub and also reach in-flight recorder processes via the supervisor
// registry.
type Worker struct {
	client    *redis.Client
	queues    []string
	count     int
	processes *supervisor.Registry
	handlers  map[Kind]Handler
	logger    zerolog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewWorker creates a worker pool of the given size over the listed queues.
func NewWorker(client *redis.Client, queues []string, count int, processes *supervisor.Registry) *Worker {
	if count < 1 {
		count = 1
	}
	return &Worker{
		client:    client,
		queues:    queues,
		count:     count,
		processes: processes,
		handlers:  make(map[Kind]Handler),
		logger:    log.WithComponent("worker"),
		running:   make(map[string]context.CancelFunc),
	}
}

// Handle registers the handler for one job kind. Must be called before Run.
func (w *Worker) Handle(kind Kind, h Handler) {
	w.handlers[kind] = h
}

// Run consumes jobs until ctx is cancelled. It blocks; the returned error is
// nil on clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	keys := make([]string, len(w.queues))
	for i, q := range w.queues {
		keys[i] = queueKey(q)
	}

	// Confirm the subscription before consuming so a cancellation published
	// right after submit cannot slip past us.
	pubsub := w.client.Subscribe(ctx, cancelChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.watchCancellations(ctx, pubsub) })

	for i := 0; i < w.count; i++ {
		g.Go(func() error {
			for {
				res, err := w.client.BRPop(ctx, time.Second, keys...).Result()
				if err == redis.Nil {
					continue
				}
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					w.logger.Warn().Err(err).Msg("queue pop failed, retrying")
					if !sleepCtx(ctx, time.Second) {
						return nil
					}
					continue
				}
				// BRPop returns [key, value].
				w.execute(ctx, []byte(res[1]))
			}
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) execute(ctx context.Context, blob []byte) {
	var task Task
	if err := json.Unmarshal(blob, &task); err != nil {
		w.logger.Error().Err(err).Msg("dropping malformed task")
		return
	}

	handler, ok := w.handlers[task.Kind]
	if !ok {
		w.logger.Error().Str("kind", string(task.Kind)).Str(log.FieldJobID, task.ID).Msg("no handler for job kind")
		w.finish(task.ID, StatusFailed, WatchResult{OK: false, Error: "unknown job kind"})
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	jobCtx = log.ContextWithJobID(jobCtx, task.ID)

	w.mu.Lock()
	w.running[task.ID] = cancel
	w.mu.Unlock()
	defer func() {
		cancel()
		w.mu.Lock()
		delete(w.running, task.ID)
		w.mu.Unlock()
	}()

	w.setStatus(task.ID, StatusRunning)
	logger := log.WithContext(jobCtx, w.logger)
	logger.Info().Str("kind", string(task.Kind)).Msg("job started")

	result, err := handler(jobCtx, task)

	switch {
	case jobCtx.Err() != nil && ctx.Err() == nil:
		// Cancelled individually, not by shutdown.
		logger.Info().Msg("job aborted")
		w.finish(task.ID, StatusAborted, result)
	case err != nil:
		logger.Error().Err(err).Msg("job failed")
		w.finish(task.ID, StatusFailed, result)
	default:
		logger.Info().Msg("job completed")
		w.finish(task.ID, StatusSucceeded, result)
	}
}

// watchCancellations drains the cancel channel and aborts local jobs.
func (w *Worker) watchCancellations(ctx context.Context, pubsub *redis.PubSub) error {
	defer pubsub.Close() //nolint:errcheck // shutdown path

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			w.cancelJob(msg.Payload)
		}
	}
}

func (w *Worker) cancelJob(jobID string) {
	w.mu.Lock()
	cancel, ok := w.running[jobID]
	w.mu.Unlock()

	if ok {
		w.logger.Info().Str(log.FieldJobID, jobID).Msg("cancelling job")
		cancel()
	}
	// Reap any process tree the job still owns, whether or not the job ran
	// on this worker.
	if w.processes != nil {
		w.processes.CleanupJob(jobID)
	}
}

func (w *Worker) setStatus(jobID string, status Status) {
	ctx, cancelT := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelT()
	if err := w.client.Set(ctx, statusKey(jobID), string(status), resultTTL).Err(); err != nil {
		w.logger.Warn().Err(err).Str(log.FieldJobID, jobID).Msg("status update failed")
	}
}

// finish persists the terminal status and result. It uses a background
// context so results survive worker shutdown.
func (w *Worker) finish(jobID string, status Status, result any) {
	w.setStatus(jobID, status)
	if result == nil {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		w.logger.Error().Err(err).Str(log.FieldJobID, jobID).Msg("result marshal failed")
		return
	}
	ctx, cancelT := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelT()
	if err := w.client.Set(ctx, resultKey(jobID), raw, resultTTL).Err(); err != nil {
		w.logger.Warn().Err(err).Str(log.FieldJobID, jobID).Msg("result store failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
