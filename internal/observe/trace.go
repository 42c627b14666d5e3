package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the Courtside tracer.
const tracerName = "github.com/MrWong99/courtside"

// SpanEscalation names the span around one cloud interpretation of an
// utterance the local parser gave up on.
const SpanEscalation = "courtside.escalation"

// Span attribute keys.
const (
	KeySessionID        = attribute.Key("courtside.session.id")
	KeyLanguage         = attribute.Key("courtside.language")
	KeyEscalationStatus = attribute.Key("courtside.escalation.status")
	KeyIntentType       = attribute.Key("courtside.intent.type")
)

// Tracer returns the Courtside [trace.Tracer] from the globally registered
// [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartEscalation starts a [SpanEscalation] span for the session sessionID
// speaking lang. An empty sessionID is left off the span.
func StartEscalation(ctx context.Context, sessionID, lang string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{KeyLanguage.String(lang)}
	if sessionID != "" {
		attrs = append(attrs, KeySessionID.String(sessionID))
	}
	return StartSpan(ctx, SpanEscalation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// EndEscalation stamps the outcome on an escalation span and ends it.
// intentType is the resolved command type, empty when nothing was resolved.
// A non-nil err marks the span failed.
func EndEscalation(span trace.Span, status, intentType string, err error) {
	span.SetAttributes(KeyEscalationStatus.String(status))
	if intentType != "" {
		span.SetAttributes(KeyIntentType.String(intentType))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// HTTP responses carry it as X-Correlation-ID and escalation notices carry it
// to clients, so a spoken command can be matched to its log lines.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// WithTrace adds trace_id and span_id from the span in ctx to l, keeping
// whatever attributes l already carries. A nil l means [slog.Default].
func WithTrace(ctx context.Context, l *slog.Logger) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return l.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
