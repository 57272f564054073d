// SPDX-License-Identifier: MIT

package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/recwatch/recwatch/internal/capture"
)

// fakeClock fires every timer immediately and records requested durations.
type fakeClock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return time.Now() }

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return &chanTimer{ch: ch}
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// stuckClock returns timers that never fire, so only ctx can end a sleep.
type stuckClock struct{}

func (stuckClock) Now() time.Time { return time.Now() }
func (stuckClock) NewTimer(time.Duration) Timer {
	return &chanTimer{ch: make(chan time.Time)}
}

type chanTimer struct{ ch chan time.Time }

func (t *chanTimer) C() <-chan time.Time { return t.ch }
func (t *chanTimer) Stop() bool          { return true }

// scriptedResolver replays one step per cycle.
type step struct {
	resolveErr error
	roomID     string
	live       bool
	liveErr    error
}

type scriptedResolver struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (r *scriptedResolver) current() step {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.steps[0]
	if len(r.steps) > 1 {
		r.steps = r.steps[1:]
	}
	r.calls++
	return s
}

func (r *scriptedResolver) ResolveRoom(_ context.Context, _ string) (string, error) {
	s := r.current()
	return s.roomID, s.resolveErr
}

func (r *scriptedResolver) IsLive(_ context.Context, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.steps[0]
	return s.live, s.liveErr
}

// staticResolver answers every cycle identically.
type staticResolver struct {
	roomID     string
	resolveErr error
	live       bool
	liveErr    error
}

func (r *staticResolver) ResolveRoom(context.Context, string) (string, error) {
	return r.roomID, r.resolveErr
}

func (r *staticResolver) IsLive(context.Context, string) (bool, error) {
	return r.live, r.liveErr
}

type recordingExecutor struct {
	mu       sync.Mutex
	requests []capture.Request
	attempt  capture.Attempt
}

func (e *recordingExecutor) Execute(_ context.Context, req capture.Request) capture.Attempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return e.attempt
}

func TestBackoffSequence(t *testing.T) {
	p := 60 * time.Second
	assert.Equal(t, 120*time.Second, Backoff(p, 1))
	assert.Equal(t, 240*time.Second, Backoff(p, 2))
	assert.Equal(t, 300*time.Second, Backoff(p, 3), "capped at the ceiling")
	assert.Equal(t, 300*time.Second, Backoff(p, 4))
	// Huge exponents must not overflow past the ceiling.
	assert.Equal(t, 300*time.Second, Backoff(p, 63))
}

func TestPollIntervalClamped(t *testing.T) {
	w := New(Config{PollInterval: time.Second}, Deps{Resolver: &staticResolver{}, Executor: &recordingExecutor{}})
	assert.Equal(t, 10*time.Second, w.cfg.PollInterval)

	w = New(Config{PollInterval: 10 * time.Hour}, Deps{Resolver: &staticResolver{}, Executor: &recordingExecutor{}})
	assert.Equal(t, 3600*time.Second, w.cfg.PollInterval)
}

func TestPollIntervalCustomBounds(t *testing.T) {
	deps := Deps{Resolver: &staticResolver{}, Executor: &recordingExecutor{}}

	w := New(Config{PollInterval: time.Second, MinPollInterval: 30 * time.Second, MaxPollInterval: 120 * time.Second}, deps)
	assert.Equal(t, 30*time.Second, w.cfg.PollInterval)

	w = New(Config{PollInterval: time.Hour, MinPollInterval: 30 * time.Second, MaxPollInterval: 120 * time.Second}, deps)
	assert.Equal(t, 120*time.Second, w.cfg.PollInterval)

	// An interval inside the bounds passes through untouched.
	w = New(Config{PollInterval: 60 * time.Second, MinPollInterval: 30 * time.Second, MaxPollInterval: 120 * time.Second}, deps)
	assert.Equal(t, 60*time.Second, w.cfg.PollInterval)
}

func TestRunTerminatesAfterFiveConsecutiveErrors(t *testing.T) {
	clock := &fakeClock{}
	resolver := &staticResolver{resolveErr: errors.New("resolution down")}

	w := New(Config{Key: "123456789", URL: "https://live.example/@user", PollInterval: 60 * time.Second},
		Deps{Resolver: resolver, Executor: &recordingExecutor{}, Clock: clock})

	err := w.Run(context.Background())
	require.ErrorIs(t, err, ErrTooManyErrors)

	// Backoffs observed before the 5th failure terminates the loop.
	assert.Equal(t, []time.Duration{
		120 * time.Second,
		240 * time.Second,
		300 * time.Second,
		300 * time.Second,
	}, clock.recorded())
}

func TestRunSuccessResetsErrorCounter(t *testing.T) {
	clock := &fakeClock{}
	resolver := &scriptedResolver{steps: []step{
		{resolveErr: errors.New("e1")},
		{resolveErr: errors.New("e2")},
		{roomID: "123456789", live: false}, // healthy cycle, counter resets
		{resolveErr: errors.New("e3")},
		{resolveErr: errors.New("e4")},
		{resolveErr: errors.New("e5")},
		{resolveErr: errors.New("e6")},
		{resolveErr: errors.New("e7")},
	}}

	w := New(Config{URL: "https://live.example/@user", PollInterval: 60 * time.Second},
		Deps{Resolver: resolver, Executor: &recordingExecutor{}, Clock: clock})

	err := w.Run(context.Background())
	require.ErrorIs(t, err, ErrTooManyErrors)

	assert.Equal(t, []time.Duration{
		120 * time.Second, // e1
		240 * time.Second, // e2
		60 * time.Second,  // healthy cycle sleeps one poll interval
		120 * time.Second, // e3: counter restarted
		240 * time.Second, // e4
		300 * time.Second, // e5
		300 * time.Second, // e6
	}, clock.recorded())
}

func TestRunAbortsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	resolver := &staticResolver{roomID: "123456789", live: false}

	ctx, cancel := context.WithCancel(context.Background())
	w := New(Config{RoomID: "123456789", PollInterval: 60 * time.Second},
		Deps{Resolver: resolver, Executor: &recordingExecutor{}, Clock: stuckClock{}})

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "external cancellation is a clean stop")
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not observe cancellation")
	}
}

func TestRunCapturesWhenLive(t *testing.T) {
	exec := &recordingExecutor{attempt: capture.Attempt{ExitCode: 1}}
	resolver := &staticResolver{roomID: "123456789", live: true}

	ctx, cancel := context.WithCancel(context.Background())
	clock := &cancellingClock{cancel: cancel}

	w := New(Config{URL: "https://live.example/@user", PollInterval: 60 * time.Second, OutputDir: "/recordings"},
		Deps{Resolver: resolver, Executor: exec, Clock: clock})

	err := w.Run(ctx)
	require.NoError(t, err)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.NotEmpty(t, exec.requests)
	req := exec.requests[0]
	assert.Equal(t, "123456789", req.RoomID, "resolved room id is used for the capture")
	assert.Zero(t, req.Duration, "watcher captures are unbounded")
	assert.Equal(t, "/recordings", req.OutputDir)
	// A non-zero capture result did not terminate the loop as an error.
}

func TestRunUnresolvedRoomIsNotAnError(t *testing.T) {
	resolver := &staticResolver{roomID: ""}

	ctx, cancel := context.WithCancel(context.Background())
	clock := &cancellingClock{cancel: cancel}

	w := New(Config{URL: "https://live.example/@user", PollInterval: 60 * time.Second},
		Deps{Resolver: resolver, Executor: &recordingExecutor{}, Clock: clock})

	err := w.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{60 * time.Second}, clock.sleeps, "unresolved room sleeps one poll interval")
}

// cancellingClock cancels the watcher context on the first sleep, then
// blocks, so exactly one full cycle runs.
type cancellingClock struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	sleeps []time.Duration
}

func (c *cancellingClock) Now() time.Time { return time.Now() }

func (c *cancellingClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	c.cancel()
	return &chanTimer{ch: make(chan time.Time)}
}
