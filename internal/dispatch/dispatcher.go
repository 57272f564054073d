// SPDX-License-Identifier: MIT

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/log"
)

const (
	queueKeyPrefix = "recwatch:queue:"
	jobKeyPrefix   = "recwatch:job:"
	cancelChannel  = "recwatch:cancel"

	// resultTTL bounds how long terminal results and statuses are kept.
	resultTTL = 24 * time.Hour
)

func queueKey(queue string) string     { return queueKeyPrefix + queue }
func statusKey(jobID string) string    { return jobKeyPrefix + jobID + ":status" }
func resultKey(jobID string) string    { return jobKeyPrefix + jobID + ":result" }

// Dispatcher submits jobs to the redis-backed queues and reads back status
// and results. It is the client side of the broker; Worker is the consumer.
type Dispatcher struct {
	client *redis.Client
	queues map[Kind]string
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher routing watcher jobs to defaultQueue
// and one-shot recordings to recordingQueue.
func NewDispatcher(client *redis.Client, defaultQueue, recordingQueue string) *Dispatcher {
	return &Dispatcher{
		client: client,
		queues: map[Kind]string{
			KindRecordOnce:     recordingQueue,
			KindWatchAndRecord: defaultQueue,
		},
		logger: log.WithComponent("dispatch"),
	}
}

// Submit enqueues a job of the given kind and returns its assigned ID.
func (d *Dispatcher) Submit(ctx context.Context, kind Kind, payload any) (string, error) {
	return d.SubmitWithID(ctx, uuid.NewString(), kind, payload)
}

// SubmitWithID enqueues a job under a caller-chosen ID. Used when the ID
// must be registered elsewhere (the watcher registry) before dispatch.
func (d *Dispatcher) SubmitWithID(ctx context.Context, jobID string, kind Kind, payload any) (string, error) {
	queue, ok := d.queues[kind]
	if !ok {
		return "", fmt.Errorf("unknown job kind %q", kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	task := Task{ID: jobID, Kind: kind, Payload: raw, EnqueuedAt: time.Now().UTC()}
	blob, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	pipe := d.client.TxPipeline()
	pipe.Set(ctx, statusKey(jobID), string(StatusPending), resultTTL)
	pipe.LPush(ctx, queueKey(queue), blob)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue %s: %w", kind, err)
	}

	d.logger.Info().
		Str(log.FieldJobID, jobID).
		Str("kind", string(kind)).
		Str("queue", queue).
		Msg("job submitted")
	return jobID, nil
}

// Status returns the job's lifecycle state; unknown jobs report empty.
func (d *Dispatcher) Status(ctx context.Context, jobID string) (Status, error) {
	s, err := d.client.Get(ctx, statusKey(jobID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("status of %s: %w", jobID, err)
	}
	return Status(s), nil
}

// Result returns the terminal result payload, or nil while the job is still
// running or unknown.
func (d *Dispatcher) Result(ctx context.Context, jobID string) (json.RawMessage, error) {
	raw, err := d.client.Get(ctx, resultKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("result of %s: %w", jobID, err)
	}
	return raw, nil
}

// Cancel requests cancellation of a running job. Delivery is broadcast over
// pub/sub; the worker owning the job cancels its context and terminates any
// in-flight process tree.
func (d *Dispatcher) Cancel(ctx context.Context, jobID string) error {
	if err := d.client.Publish(ctx, cancelChannel, jobID).Err(); err != nil {
		return fmt.Errorf("cancel %s: %w", jobID, err)
	}
	d.logger.Info().Str(log.FieldJobID, jobID).Msg("cancellation requested")
	return nil
}
