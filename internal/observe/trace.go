package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for every span the daemon emits.
const tracerName = "github.com/correx/correx"

// Tracer returns the daemon's tracer from the globally registered
// [trace.TracerProvider]. Correction rounds, replacements, and diagnostics
// requests all span under the same scope so a round's trace shows the full
// path from trigger to buffer swap.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan opens a span under the daemon tracer. The caller owns span.End.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the active trace ID, or "" outside a span. The same
// ID lands in log lines and the X-Correlation-ID header, which is what ties
// a user-visible replacement back to its provider calls.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default [slog.Logger] with trace_id and span_id
// attached when ctx carries an active span, and unchanged otherwise.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
