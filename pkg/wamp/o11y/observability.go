// Package o11y defines the metrics and tracing hooks used by the WAMP client.
// Implementations live elsewhere (see the otel package); a nil provider
// disables the corresponding instrumentation.
package o11y

import (
	"context"

	"github.com/tsarna/wamplink/pkg/wamp"
)

// Instrument names recorded by the client.
const (
	MetricCalls           = "wamp_client_calls_total"
	MetricCallErrors      = "wamp_client_call_errors_total"
	MetricCallDuration    = "wamp_client_call_duration_seconds"
	MetricEventsReceived  = "wamp_client_events_received_total"
	MetricEventsDropped   = "wamp_client_events_dropped_total"
	MetricInvocations     = "wamp_client_invocations_total"
	MetricViolations      = "wamp_client_protocol_violations_total"
	MetricPendingRequests = "wamp_client_pending_requests"

	SpanCall = "wamp.call"
)

// ObservabilityConfig bundles the providers a client reports to.
type ObservabilityConfig struct {
	MetricsProvider MetricsProvider
	TracingProvider TracingProvider
	ServiceName     string
	ServiceVersion  string
}

// MetricsProvider hands out named instruments. Asking twice for the same
// name returns instruments that record into the same series.
type MetricsProvider interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

type TracingProvider interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// Counter only goes up.
type Counter interface {
	Add(ctx context.Context, value int64, labels ...Label)
}

type Histogram interface {
	Record(ctx context.Context, value float64, labels ...Label)
}

// Gauge reports the latest value set.
type Gauge interface {
	Set(ctx context.Context, value float64, labels ...Label)
}

type Span interface {
	SetAttributes(labels ...Label)
	SetStatus(code SpanStatusCode, description string)
	End()
}

// Label is a dimension attached to a measurement or span attribute.
type Label struct {
	Key   string
	Value string
}

func ProcedureLabel(procedure wamp.URI) Label {
	return Label{Key: "procedure", Value: string(procedure)}
}

func TopicLabel(topic wamp.URI) Label {
	return Label{Key: "topic", Value: string(topic)}
}

// StatusLabel is "error" when err is set and "success" otherwise.
func StatusLabel(err error) Label {
	if err != nil {
		return Label{Key: "status", Value: "error"}
	}
	return Label{Key: "status", Value: "success"}
}

type SpanStatusCode int

const (
	SpanStatusUnset SpanStatusCode = iota
	SpanStatusOK
	SpanStatusError
)
