package tracing

import "context"

type contextKey string

const (
	traceIDKey       contextKey = "trace_id"
	operationNameKey contextKey = "operation_name"
)

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID carried by the context, if any.
func GetTraceID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(traceIDKey).(string)
	return id, ok && id != ""
}

// WithOperationName returns a context carrying the given operation name.
func WithOperationName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, operationNameKey, name)
}

// GetOperationName returns the operation name carried by the context, if any.
func GetOperationName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(operationNameKey).(string)
	return name, ok && name != ""
}
