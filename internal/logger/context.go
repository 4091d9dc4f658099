package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// appendContextFields appends trace_id and span_id from the context's
// active OpenTelemetry span, if any, to the given slog args.
func appendContextFields(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return args
	}
	args = append(args, KeyTraceID, sc.TraceID().String())
	if sc.HasSpanID() {
		args = append(args, KeySpanID, sc.SpanID().String())
	}
	return args
}
