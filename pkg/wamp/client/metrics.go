package client

import (
	"context"
	"time"

	"github.com/tsarna/wamplink/pkg/wamp"
	"github.com/tsarna/wamplink/pkg/wamp/o11y"
)

// clientMetrics holds the pre-created instruments. A nil *clientMetrics
// records nothing.
type clientMetrics struct {
	calls          o11y.Counter
	callErrors     o11y.Counter
	callDuration   o11y.Histogram
	eventsReceived o11y.Counter
	eventsDropped  o11y.Counter
	invocations    o11y.Counter
	violations     o11y.Counter
	pending        o11y.Gauge
}

func newClientMetrics(provider o11y.MetricsProvider) *clientMetrics {
	if provider == nil {
		return nil
	}
	return &clientMetrics{
		calls:          provider.Counter(o11y.MetricCalls),
		callErrors:     provider.Counter(o11y.MetricCallErrors),
		callDuration:   provider.Histogram(o11y.MetricCallDuration),
		eventsReceived: provider.Counter(o11y.MetricEventsReceived),
		eventsDropped:  provider.Counter(o11y.MetricEventsDropped),
		invocations:    provider.Counter(o11y.MetricInvocations),
		violations:     provider.Counter(o11y.MetricViolations),
		pending:        provider.Gauge(o11y.MetricPendingRequests),
	}
}

func (m *clientMetrics) callDone(ctx context.Context, procedure wamp.URI, start time.Time, err error) {
	if m == nil {
		return
	}
	label := o11y.ProcedureLabel(procedure)
	if err != nil {
		m.callErrors.Add(ctx, 1, label)
	}
	m.calls.Add(ctx, 1, label, o11y.StatusLabel(err))
	m.callDuration.Record(ctx, time.Since(start).Seconds(), label)
}

func (m *clientMetrics) eventReceived(ctx context.Context, topic wamp.URI) {
	if m == nil {
		return
	}
	m.eventsReceived.Add(ctx, 1, o11y.TopicLabel(topic))
}

func (m *clientMetrics) eventDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.Add(ctx, 1, o11y.Label{Key: "reason", Value: reason})
}

func (m *clientMetrics) invoked(ctx context.Context, procedure wamp.URI) {
	if m == nil {
		return
	}
	m.invocations.Add(ctx, 1, o11y.ProcedureLabel(procedure))
}

func (m *clientMetrics) violation(ctx context.Context) {
	if m == nil {
		return
	}
	m.violations.Add(ctx, 1)
}

func (m *clientMetrics) pendingRequests(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.pending.Set(ctx, float64(n))
}
