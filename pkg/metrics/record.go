package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// RecordHTTPRequestContext counts a request and observes its latency. When
// ctx carries a sampled span the sample gets a trace exemplar.
func (m *Manager) RecordHTTPRequestContext(ctx context.Context, method, route, status string, d time.Duration) {
	if m.c == nil {
		return
	}
	m.c.httpRequests.WithLabelValues(method, route, status).Inc()
	observe(ctx, m.c.httpLatency.WithLabelValues(method, route), d)
}

func (m *Manager) IncActiveConnections() {
	if m.c != nil {
		m.c.httpInFlight.Inc()
	}
}

func (m *Manager) DecActiveConnections() {
	if m.c != nil {
		m.c.httpInFlight.Dec()
	}
}

// RecordRetrieval records one retrieval engine call.
func (m *Manager) RecordRetrieval(outcome string, scanned int, d time.Duration) {
	if m.c == nil {
		return
	}
	m.c.retrievals.WithLabelValues(outcome).Inc()
	m.c.retrievalLatency.WithLabelValues(outcome).Observe(d.Seconds())
	m.c.scanned.Observe(float64(scanned))
}

func (m *Manager) RecordCacheLookup(result string) {
	if m.c != nil {
		m.c.cacheLookups.WithLabelValues(result).Inc()
	}
}

func (m *Manager) RecordCacheInvalidation() {
	if m.c != nil {
		m.c.cacheBumps.Inc()
	}
}

// RecordSummary records the outcome for one conversation.
func (m *Manager) RecordSummary(status string) {
	if m.c != nil {
		m.c.summaries.WithLabelValues(status).Inc()
	}
}

func (m *Manager) RecordSummarizerRun(d time.Duration) {
	if m.c != nil {
		m.c.summarizerPass.Observe(d.Seconds())
	}
}

func (m *Manager) RecordEventPublished(eventType string) {
	if m.c != nil {
		m.c.eventsPublished.WithLabelValues(eventType).Inc()
	}
}

func (m *Manager) RecordEventDropped() {
	if m.c != nil {
		m.c.eventsDropped.Inc()
	}
}

func observe(ctx context.Context, o prometheus.Observer, d time.Duration) {
	if ex, ok := o.(prometheus.ExemplarObserver); ok {
		if labels := exemplar(ctx); labels != nil {
			ex.ObserveWithExemplar(d.Seconds(), labels)
			return
		}
	}
	o.Observe(d.Seconds())
}

// exemplar returns trace and span ids for a valid span context, else nil.
func exemplar(ctx context.Context) prometheus.Labels {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String(), "span_id": sc.SpanID().String()}
}
