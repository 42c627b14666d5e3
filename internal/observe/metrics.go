// Package observe provides application-wide observability primitives for
// Courtside: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [Init] bridges
// them to a Prometheus registry served by [Telemetry.Handler] on /metrics.
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Courtside metrics.
const meterName = "github.com/MrWong99/courtside"

// Command sources reported on [Metrics.CommandsExecuted].
const (
	SourceLocal   = "local"
	SourceCloud   = "cloud"
	SourceConfirm = "confirm"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// ParseDuration tracks local intent parsing latency.
	ParseDuration metric.Float64Histogram

	// CloudDuration tracks cloud fallback round trips.
	CloudDuration metric.Float64Histogram

	// --- Counters ---

	// CommandsExecuted counts intents dispatched to the scorer. Use with
	// attributes:
	//   attribute.String("type", ...), attribute.String("source", ...)
	CommandsExecuted metric.Int64Counter

	// CommandsRejected counts intents that were not dispatched. Use with
	// attribute:
	//   attribute.String("reason", ...)
	CommandsRejected metric.Int64Counter

	// CommandsHeld counts intents parked for a caller decision. Use with
	// attribute:
	//   attribute.String("kind", ...) // "confirm", "conflict", "ambiguous"
	CommandsHeld metric.Int64Counter

	// CloudEscalations counts cloud fallback attempts. Use with attribute:
	//   attribute.String("status", ...)
	CloudEscalations metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live scoring sessions across all
	// bridges.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// parseBuckets covers local parsing, which is pure CPU work.
var parseBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// latencyBuckets covers network round trips to cloud models.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ParseDuration, err = m.Float64Histogram("courtside.parse.duration",
		metric.WithDescription("Latency of local intent parsing."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(parseBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CloudDuration, err = m.Float64Histogram("courtside.cloud.duration",
		metric.WithDescription("Latency of cloud intent fallback calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CommandsExecuted, err = m.Int64Counter("courtside.command.executed",
		metric.WithDescription("Total commands dispatched to the scorer by type and source."),
	); err != nil {
		return nil, err
	}
	if met.CommandsRejected, err = m.Int64Counter("courtside.command.rejected",
		metric.WithDescription("Total commands dropped before dispatch by reason."),
	); err != nil {
		return nil, err
	}
	if met.CommandsHeld, err = m.Int64Counter("courtside.command.held",
		metric.WithDescription("Total commands held for a caller decision by kind."),
	); err != nil {
		return nil, err
	}
	if met.CloudEscalations, err = m.Int64Counter("courtside.cloud.escalations",
		metric.WithDescription("Total cloud fallback escalations by status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("courtside.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("courtside.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("courtside.active_sessions",
		metric.WithDescription("Number of live scoring sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("courtside.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCommand records one dispatched command.
func (m *Metrics) RecordCommand(ctx context.Context, commandType, source string) {
	m.CommandsExecuted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", commandType),
			attribute.String("source", source),
		),
	)
}

// RecordRejection records one command dropped before dispatch.
func (m *Metrics) RecordRejection(ctx context.Context, reason string) {
	m.CommandsRejected.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordHeld records one command parked for a caller decision.
func (m *Metrics) RecordHeld(ctx context.Context, kind string) {
	m.CommandsHeld.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordEscalation records the outcome of one cloud fallback attempt.
func (m *Metrics) RecordEscalation(ctx context.Context, status string) {
	m.CloudEscalations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
