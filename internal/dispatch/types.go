// SPDX-License-Identifier: MIT

// Package dispatch is the job broker and result store: redis-backed queues,
// a bounded worker pool, and the handlers that execute capture and watcher
// jobs through the supervision core.
package dispatch

import (
	"encoding/json"
	"time"
)

// Kind names a job type. The two job kinds mirror the queue split between
// one-shot recordings and long-lived watchers.
type Kind string

const (
	KindRecordOnce     Kind = "record_once"
	KindWatchAndRecord Kind = "watch_and_record"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusAborted   Status = "ABORTED"
)

// Task is the wire form of one queued job.
type Task struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// OptionsPayload carries per-job recording options across the queue. Cookies
// is a path reference, resolved to credential data by the executing worker.
type OptionsPayload struct {
	Proxy    string `json:"proxy,omitempty"`
	Cookies  string `json:"cookies,omitempty"`
	UploadS3 bool   `json:"upload_s3,omitempty"`
}

// RecordOncePayload parameterizes a one-shot capture job.
type RecordOncePayload struct {
	RoomID          string         `json:"room_id,omitempty"`
	URL             string         `json:"url,omitempty"`
	DurationSeconds int            `json:"duration,omitempty"` // 0 = until the stream ends
	Options         OptionsPayload `json:"options"`
}

// WatchPayload parameterizes a watcher job.
type WatchPayload struct {
	Key                 string         `json:"key"`
	RoomID              string         `json:"room_id,omitempty"`
	URL                 string         `json:"url,omitempty"`
	PollIntervalSeconds int            `json:"poll_interval"`
	Options             OptionsPayload `json:"options"`
}

// WatchResult is the terminal result of a watcher job.
type WatchResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
