// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	jobIDKey  ctxKey = "job_id"
	roomIDKey ctxKey = "room_id"
	urlKey    ctxKey = "url"
)

// ContextWithJobID stores the provided job ID in the context.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// ContextWithTarget stores the room ID and URL of the job's target in the
// context. Empty values are stored as-is and skipped at extraction time.
func ContextWithTarget(ctx context.Context, roomID, url string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, roomIDKey, roomID)
	return context.WithValue(ctx, urlKey, url)
}

// JobIDFromContext extracts the job ID from context if present.
func JobIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(jobIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext enriches the supplied logger with correlation fields from context.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	if jid := JobIDFromContext(ctx); jid != "" {
		builder = builder.Str(FieldJobID, jid)
		added = true
	}
	if rid, ok := ctx.Value(roomIDKey).(string); ok && rid != "" {
		builder = builder.Str(FieldRoomID, rid)
		added = true
	}
	if u, ok := ctx.Value(urlKey).(string); ok && u != "" {
		builder = builder.Str(FieldURL, u)
		added = true
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger annotated with the component name
// and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
