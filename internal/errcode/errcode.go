// SPDX-License-Identifier: MIT

// Package errcode defines the closed set of structured error kinds used in
// client-facing job results, and the mapping from recorder exit codes.
package errcode

import (
	"errors"
	"fmt"
)

// Kind is a stable, client-facing error code. The set is closed: values
// outside this list must never be constructed.
type Kind string

const (
	// General errors
	InternalError       Kind = "INTERNAL_ERROR"
	ValidationError     Kind = "VALIDATION_ERROR"
	AuthenticationError Kind = "AUTHENTICATION_ERROR"
	RateLimitExceeded   Kind = "RATE_LIMIT_EXCEEDED"

	// Recorder errors
	RecorderExitNonZero Kind = "RECORDER_EXIT_NONZERO"
	FfmpegMissing       Kind = "FFMPEG_MISSING"
	LiveOffline         Kind = "LIVE_OFFLINE"
	NetworkTimeout      Kind = "NETWORK_TIMEOUT"
	InvalidURL          Kind = "INVALID_URL"
	InvalidRoomID       Kind = "INVALID_ROOM_ID"
	CookiesInvalid      Kind = "COOKIES_INVALID"
	ProxyError          Kind = "PROXY_ERROR"
	StorageError        Kind = "STORAGE_ERROR"

	// Watcher errors
	WatcherAlreadyExists Kind = "WATCHER_ALREADY_EXISTS"
	WatcherNotFound      Kind = "WATCHER_NOT_FOUND"
	WatcherStopFailed    Kind = "WATCHER_STOP_FAILED"

	// File/storage errors
	FileNotFound   Kind = "FILE_NOT_FOUND"
	DiskFull       Kind = "DISK_FULL"
	S3UploadFailed Kind = "S3_UPLOAD_FAILED"
)

// exitCodeKinds maps recorder process exit codes to error kinds.
var exitCodeKinds = map[int]Kind{
	1:   RecorderExitNonZero,
	2:   InvalidURL,
	3:   InvalidRoomID,
	4:   NetworkTimeout,
	5:   LiveOffline,
	127: FfmpegMissing,
}

// FromExitCode maps a recorder exit code to an error kind. Unmapped non-zero
// codes fall back to RecorderExitNonZero so a failed result never lacks a
// kind. Zero returns the empty Kind.
func FromExitCode(code int) Kind {
	if code == 0 {
		return ""
	}
	if k, ok := exitCodeKinds[code]; ok {
		return k
	}
	return RecorderExitNonZero
}

// Error is a structured error carrying a Kind and optional details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

// New creates a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a structured error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a structured error wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetail attaches a key/value detail and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// match with errors.Is(err, errcode.New(kind, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from an error chain. Unclassified errors map to
// InternalError; nil maps to the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}
