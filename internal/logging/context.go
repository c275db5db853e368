package logging

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const threadIDKey contextKey = "thread_id"

func stderr() *os.File { return os.Stderr }

// WithThreadID tags the context with the conversation thread being processed.
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, threadIDKey, threadID)
}

// ContextFields extracts the correlation fields carried by the context:
// trace and span IDs when a span is recording, and the thread ID when set.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field

	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		fields = append(fields,
			zap.String("trace_id", span.TraceID().String()),
			zap.String("span_id", span.SpanID().String()),
		)
	}
	if threadID, ok := ctx.Value(threadIDKey).(string); ok && threadID != "" {
		fields = append(fields, zap.String("thread_id", threadID))
	}
	return fields
}
