// SPDX-License-Identifier: MIT

package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recwatch/recwatch/internal/capture"
	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/watcher"
)

type fakeExecutor struct {
	attempt  capture.Attempt
	requests []capture.Request
}

func (e *fakeExecutor) Execute(_ context.Context, req capture.Request) capture.Attempt {
	e.requests = append(e.requests, req)
	return e.attempt
}

func mustPayload(t *testing.T, v any) Task {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return Task{ID: "job-1", Payload: raw}
}

func TestRecordOnceHandlerBuildsResult(t *testing.T) {
	exec := &fakeExecutor{attempt: capture.Attempt{ExitCode: 0, Files: []string{"/rec/a.mp4"}}}
	h := recordOnceHandler(JobDeps{Executor: exec, RecordingsDir: "/rec"})

	out, err := h(context.Background(), mustPayload(t, RecordOncePayload{RoomID: "123", DurationSeconds: 60}))
	require.NoError(t, err, "record_once never fails the job itself")

	result, ok := out.(capture.Result)
	require.True(t, ok)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, []string{"/rec/a.mp4"}, result.Files)
	assert.Empty(t, result.ErrorKind)

	require.Len(t, exec.requests, 1)
	assert.Equal(t, "/rec", exec.requests[0].OutputDir)
	assert.Equal(t, int64(60), int64(exec.requests[0].Duration.Seconds()))
}

func TestRecordOnceHandlerEncodesCookieFailure(t *testing.T) {
	exec := &fakeExecutor{}
	h := recordOnceHandler(JobDeps{Executor: exec, RecordingsDir: "/rec"})

	out, err := h(context.Background(), mustPayload(t, RecordOncePayload{
		RoomID:  "123",
		Options: OptionsPayload{Cookies: "/nonexistent/cookies.json"},
	}))
	require.NoError(t, err)

	result := out.(capture.Result)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, errcode.CookiesInvalid, result.ErrorKind)
	assert.Empty(t, exec.requests, "capture must not start with rejected credentials")
}

func TestRecordOnceHandlerMapsExitCode(t *testing.T) {
	exec := &fakeExecutor{attempt: capture.Attempt{ExitCode: 5}}
	h := recordOnceHandler(JobDeps{Executor: exec, RecordingsDir: "/rec"})

	out, err := h(context.Background(), mustPayload(t, RecordOncePayload{RoomID: "123"}))
	require.NoError(t, err)

	result := out.(capture.Result)
	assert.Equal(t, 5, result.ExitCode)
	assert.Equal(t, errcode.LiveOffline, result.ErrorKind)
}

func TestWatchHandlerRemovesRegistrationOnExit(t *testing.T) {
	client := newTestClient(t)
	registry := watcher.NewRegistry(client)

	ctx := context.Background()
	require.NoError(t, registry.Create(ctx, "room:123", "job-1"))

	// Resolver that always fails drives the watcher into its error ceiling.
	h := watchAndRecordHandler(JobDeps{
		Executor: &fakeExecutor{},
		Resolver: failingResolver{},
		Watchers: registry,
		Timers:   instantClock{},
	})

	out, err := h(ctx, mustPayload(t, WatchPayload{Key: "room:123", URL: "https://live.example/@user", PollIntervalSeconds: 10}))
	require.ErrorIs(t, err, watcher.ErrTooManyErrors)

	result := out.(WatchResult)
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Error)

	jobID, err := registry.Get(ctx, "room:123")
	require.NoError(t, err)
	assert.Empty(t, jobID, "registry entry released on watcher exit")
}

func TestWatchHandlerAppliesPollBounds(t *testing.T) {
	client := newTestClient(t)
	registry := watcher.NewRegistry(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := &recordingClock{cancel: cancel}

	h := watchAndRecordHandler(JobDeps{
		Executor: &fakeExecutor{},
		Resolver: offlineResolver{},
		Watchers: registry,
		Timers:   clock,

		MinPollInterval: 45 * time.Second,
	})

	out, err := h(ctx, mustPayload(t, WatchPayload{Key: "room:456", RoomID: "456", PollIntervalSeconds: 1}))
	require.NoError(t, err)
	assert.True(t, out.(WatchResult).OK)

	// The 1s request was clamped up to the configured minimum.
	assert.Equal(t, []time.Duration{45 * time.Second}, clock.sleeps)
}

// recordingClock notes each requested sleep, cancels the watcher context on
// the first one, and returns timers that never fire.
type recordingClock struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	sleeps []time.Duration
}

func (c *recordingClock) Now() time.Time { return time.Now() }

func (c *recordingClock) NewTimer(d time.Duration) watcher.Timer {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	c.cancel()
	return instantTimer{ch: make(chan time.Time)}
}

type offlineResolver struct{}

func (offlineResolver) ResolveRoom(context.Context, string) (string, error) { return "456", nil }
func (offlineResolver) IsLive(context.Context, string) (bool, error)       { return false, nil }

// instantClock fires every timer immediately so backoffs take no wall time.
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }

func (instantClock) NewTimer(time.Duration) watcher.Timer {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return instantTimer{ch: ch}
}

type instantTimer struct{ ch chan time.Time }

func (t instantTimer) C() <-chan time.Time { return t.ch }
func (t instantTimer) Stop() bool          { return true }

type failingResolver struct{}

func (failingResolver) ResolveRoom(context.Context, string) (string, error) {
	return "", errcode.New(errcode.NetworkTimeout, "resolution unavailable")
}

func (failingResolver) IsLive(context.Context, string) (bool, error) {
	return false, errcode.New(errcode.NetworkTimeout, "resolution unavailable")
}
