// Package metrics exposes ved's Prometheus collectors. Every Record method
// is safe on a disabled Manager and does nothing there.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every ved metric name.
const Namespace = "ved"

// Config holds metrics configuration. Empty bucket slices fall back to
// DefaultConfig.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	HTTPBuckets       []float64
	RetrievalBuckets  []float64
	ScannedBuckets    []float64
	SummarizerBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		Port:              9091,
		Path:              "/metrics",
		HTTPBuckets:       []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		RetrievalBuckets:  []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
		ScannedBuckets:    []float64{0, 1, 5, 25, 100, 250, 500, 1000},
		SummarizerBuckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}
}

type collectorSet struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	retrievals       *prometheus.CounterVec
	retrievalLatency *prometheus.HistogramVec
	scanned          prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	cacheBumps       prometheus.Counter

	summaries       *prometheus.CounterVec
	summarizerPass  prometheus.Histogram
	eventsPublished *prometheus.CounterVec
	eventsDropped   prometheus.Counter
}

// Manager owns a private registry and the collectors registered on it.
type Manager struct {
	registry *prometheus.Registry
	c        *collectorSet
}

// Nop returns a disabled Manager.
func Nop() *Manager { return &Manager{} }

// NewManager registers ved's collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return Nop()
	}
	def := DefaultConfig()
	orDefault := func(b, fallback []float64) []float64 {
		if len(b) == 0 {
			return fallback
		}
		return b
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	c := &collectorSet{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: orDefault(cfg.HTTPBuckets, def.HTTPBuckets),
		}, []string{"method", "route"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		retrievals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "memory", Name: "retrievals_total",
			Help: "Context retrievals by outcome.",
		}, []string{"outcome"}),
		retrievalLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "memory", Name: "retrieval_duration_seconds",
			Help:    "Context retrieval latency by outcome.",
			Buckets: orDefault(cfg.RetrievalBuckets, def.RetrievalBuckets),
		}, []string{"outcome"}),
		scanned: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "memory", Name: "scanned_conversations",
			Help:    "Conversations examined per retrieval.",
			Buckets: orDefault(cfg.ScannedBuckets, def.ScannedBuckets),
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "cache", Name: "lookups_total",
			Help: "Retrieval cache lookups by result (hit, miss, error).",
		}, []string{"result"}),
		cacheBumps: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "cache", Name: "invalidations_total",
			Help: "Project generation bumps.",
		}),

		summaries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "summarizer", Name: "conversations_total",
			Help: "Conversations processed by the summarizer by status.",
		}, []string{"status"}),
		summarizerPass: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace, Subsystem: "summarizer", Name: "pass_duration_seconds",
			Help:    "Duration of one summarizer pass.",
			Buckets: orDefault(cfg.SummarizerBuckets, def.SummarizerBuckets),
		}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "events", Name: "published_total",
			Help: "Events handed to subscribers by type.",
		}, []string{"type"}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace, Subsystem: "events", Name: "dropped_total",
			Help: "Events a subscriber missed because its buffer was full.",
		}),
	}
	return &Manager{registry: reg, c: c}
}

// Enabled reports whether the manager records anything.
func (m *Manager) Enabled() bool { return m.c != nil }

// Registry is nil when the manager is disabled.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus or OpenMetrics format. A
// disabled manager answers 404.
func (m *Manager) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartServer serves Handler at path on its own port until ctx is done.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.Enabled() {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
