package infrastructure

import (
	"context"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestTraceIDFromContext(t *testing.T) {
	t.Run("explicit trace id wins", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-explicit")
		assert.Equal(t, "trace-explicit", TraceIDFromContext(ctx))
	})

	t.Run("falls back to chi request id", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
		assert.Equal(t, "req-42", TraceIDFromContext(ctx))
	})

	t.Run("empty without either", func(t *testing.T) {
		assert.Empty(t, TraceIDFromContext(context.Background()))
		assert.Empty(t, TraceIDFromContext(nil))
	})
}

func TestEnsureTraceID(t *testing.T) {
	t.Run("preserves an existing id", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "trace-1")
		got, id := EnsureTraceID(ctx)
		assert.Equal(t, "trace-1", id)
		assert.Equal(t, ctx, got)
	})

	t.Run("generates when missing", func(t *testing.T) {
		ctx, id := EnsureTraceID(context.Background())
		assert.NotEmpty(t, id)
		assert.Equal(t, id, TraceIDFromContext(ctx))
	})
}
