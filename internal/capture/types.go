// SPDX-License-Identifier: MIT

// Package capture performs one recording attempt against a live target and
// reports exactly what was produced on disk.
package capture

import (
	"context"
	"time"

	"github.com/recwatch/recwatch/internal/errcode"
	"github.com/recwatch/recwatch/internal/uploader"
)

// Options are the per-job recording options. Immutable once a job starts.
type Options struct {
	Proxy    string            `json:"proxy,omitempty"`
	Cookies  map[string]string `json:"-"`       // resolved credential data
	UploadS3 bool              `json:"upload_s3"`
}

// Request describes one capture attempt. At least one of RoomID and URL is
// present; validation happens at the API layer.
type Request struct {
	RoomID    string
	URL       string
	Duration  time.Duration // 0 = record until the stream ends
	OutputDir string
	Options   Options
}

// Spec is the invocation handed to the capture engine.
type Spec struct {
	RoomID    string
	URL       string
	Duration  time.Duration
	OutputDir string
	Proxy     string
	Cookies   map[string]string
	Timeout   time.Duration // wall-clock ceiling enforced by the supervisor
}

// Attempt is the outcome of one capture attempt: the recorder exit code and
// the artifacts discovered by diffing the output directory.
type Attempt struct {
	ExitCode int
	Files    []string
}

// Runner runs one capture invocation and reports the recorder exit code.
// Implementations must not report plain non-zero exits as errors.
type Runner interface {
	Capture(ctx context.Context, spec Spec) (int, error)
}

// Resolver is the liveness/resolution collaborator.
type Resolver interface {
	ResolveRoom(ctx context.Context, url string) (string, error)
	IsLive(ctx context.Context, roomID string) (bool, error)
}

// Result is the terminal, client-facing outcome of a capture job.
type Result struct {
	ExitCode     int                `json:"returncode"`
	Files        []string           `json:"files"`
	Uploads      []uploader.Outcome `json:"s3"`
	StartedAt    string             `json:"started_at"`
	EndedAt      string             `json:"ended_at"`
	ErrorKind    errcode.Kind       `json:"error_code,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

// BuildResult assembles a Result and enforces the invariant that ErrorKind
// is populated whenever ExitCode is non-zero: a caller-supplied kind wins,
// otherwise the exit code is mapped through the taxonomy.
func BuildResult(attempt Attempt, uploads []uploader.Outcome, startedAt, endedAt time.Time, kind errcode.Kind, message string) Result {
	if attempt.ExitCode != 0 && kind == "" {
		kind = errcode.FromExitCode(attempt.ExitCode)
	}
	files := attempt.Files
	if files == nil {
		files = []string{}
	}
	if uploads == nil {
		uploads = []uploader.Outcome{}
	}
	return Result{
		ExitCode:     attempt.ExitCode,
		Files:        files,
		Uploads:      uploads,
		StartedAt:    startedAt.UTC().Format(time.RFC3339),
		EndedAt:      endedAt.UTC().Format(time.RFC3339),
		ErrorKind:    kind,
		ErrorMessage: message,
	}
}
