package infrastructure

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// contextKey is a type for context keys
type contextKey string

// TraceIDContextKey is the key for storing trace ID in context
const TraceIDContextKey contextKey = "trace_id"

// WithTraceID returns a context carrying the given trace ID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDContextKey, traceID)
}

// TraceIDFromContext extracts the trace ID from the context. It checks the
// explicit trace key first, then the chi request ID, and returns "" when
// neither is present.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDContextKey).(string); ok && traceID != "" {
		return traceID
	}
	return middleware.GetReqID(ctx)
}

// NewTraceID generates a fresh trace identifier
func NewTraceID() string {
	return uuid.NewString()
}

// EnsureTraceID returns a context guaranteed to carry a trace ID, and that ID
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if id := TraceIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewTraceID()
	return WithTraceID(ctx, id), id
}
