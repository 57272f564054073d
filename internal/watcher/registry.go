// SPDX-License-Identifier: MIT

package watcher

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/log"
)

// watchersKey is the redis hash holding watch key -> job ID entries.
const watchersKey = "watchers"

// ErrWatcherExists is returned when a watcher is already registered for a key.
var ErrWatcherExists = errcode.New(errcode.WatcherAlreadyExists, "watcher already exists")

// Registry enforces the at-most-one-active-watcher-per-key invariant over a
// shared redis hash, visible to every worker process.
type Registry struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRegistry creates a registry over the given redis client.
func NewRegistry(client *redis.Client) *Registry {
	return &Registry{
		client: client,
		logger: log.WithComponent("watcher.registry"),
	}
}

// Create registers jobID as the active watcher for key. The set is atomic
// (HSETNX): a concurrent create for the same key loses and gets
// ErrWatcherExists, so duplicate watchers cannot be registered.
func (r *Registry) Create(ctx context.Context, key, jobID string) error {
	ok, err := r.client.HSetNX(ctx, watchersKey, key, jobID).Result()
	if err != nil {
		return fmt.Errorf("register watcher %q: %w", key, err)
	}
	if !ok {
		return ErrWatcherExists
	}
	r.logger.Info().Str(log.FieldKey, key).Str(log.FieldJobID, jobID).Msg("watcher registered")
	return nil
}

// Get returns the job ID of the active watcher for key, or "" if none.
func (r *Registry) Get(ctx context.Context, key string) (string, error) {
	jobID, err := r.client.HGet(ctx, watchersKey, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup watcher %q: %w", key, err)
	}
	return jobID, nil
}

// Delete removes the entry for key and reports whether one existed.
// Deleting an absent key is not an error.
func (r *Registry) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.HDel(ctx, watchersKey, key).Result()
	if err != nil {
		return false, fmt.Errorf("delete watcher %q: %w", key, err)
	}
	return n > 0, nil
}

// List returns the full key -> job ID mapping for observability.
func (r *Registry) List(ctx context.Context) (map[string]string, error) {
	m, err := r.client.HGetAll(ctx, watchersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list watchers: %w", err)
	}
	return m, nil
}
