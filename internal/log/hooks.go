package log

import (
	"context"

	"github.com/parrotgw/parrot/internal/tracing"
)

// Hook contributes fields derived from the context to every log entry.
type Hook interface {
	Apply(ctx context.Context, msg string) []Field
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, msg string) []Field

// Apply implements Hook.
func (f HookFunc) Apply(ctx context.Context, msg string) []Field {
	return f(ctx, msg)
}

var defaultHooks = []Hook{HookFunc(traceFields)}

func traceFields(ctx context.Context, _ string) []Field {
	if ctx == nil {
		return nil
	}

	var fields []Field

	if traceID, ok := tracing.GetTraceID(ctx); ok {
		fields = append(fields, String("trace_id", traceID))
	}

	if name, ok := tracing.GetOperationName(ctx); ok {
		fields = append(fields, String("operation_name", name))
	}

	return fields
}
