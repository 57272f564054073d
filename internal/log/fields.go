// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID  = "job_id"
	FieldRoomID = "room_id"
	FieldURL    = "url"
	FieldKey    = "key"

	// Process fields
	FieldComponent = "component"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"

	// Storage fields
	FieldPath   = "path"
	FieldBucket = "bucket"
	FieldS3Key  = "s3_key"
)
