// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	videoIDKey   ctxKey = "video_id"
)

// ContextWithRequestID stores the provided request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithVideoID stores the provided video ID in the context.
func ContextWithVideoID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, videoIDKey, id)
}

// RequestIDFromContext extracts the request ID from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// VideoIDFromContext extracts the video ID from context if present.
func VideoIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(videoIDKey).(string); ok {
		return v
	}
	return ""
}

// WithComponentFromContext returns a logger annotated with the component name
// and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	builder := Base().With().Str("component", component)
	if rid := RequestIDFromContext(ctx); rid != "" {
		builder = builder.Str("request_id", rid)
	}
	if vid := VideoIDFromContext(ctx); vid != "" {
		builder = builder.Str("video_id", vid)
	}
	return builder.Logger()
}
