// Package tracing installs the process-wide OpenTelemetry tracer provider
// and the W3C propagator used by the HTTP and gRPC middleware.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/vedmemory/ved/config"
	"github.com/vedmemory/ved/pkg/logger"
)

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

// Service identifies the process in exported spans.
type Service struct {
	Name        string
	Version     string
	Environment string
}

// installer builds the provider. Tests swap the exporter and the failure
// hook.
type installer struct {
	exporter      func(ctx context.Context, endpoint string, secure bool, cfg config.TracingConfig) (sdktrace.SpanExporter, error)
	onExportError func(log logger.Logger, err error, endpoint string, spans int)
}

var defaultInstaller = installer{
	exporter: otlpExporter,
	onExportError: func(log logger.Logger, err error, endpoint string, spans int) {
		log.Warn("span export failed", "error", err, "endpoint", endpoint, "span_count", spans)
	},
}

// Init installs a tracer provider for svc. Disabled tracing installs a noop
// provider so instrumented code needs no checks. The propagator is
// installed either way so incoming trace context still reaches the logs.
func Init(ctx context.Context, cfg config.TracingConfig, svc Service, log logger.Logger) (ShutdownFunc, error) {
	return defaultInstaller.install(ctx, cfg, svc, log)
}

func (in installer) install(ctx context.Context, cfg config.TracingConfig, svc Service, log logger.Logger) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	endpoint, secure := parseEndpoint(cfg.Endpoint)
	switch {
	case endpoint == "":
		return nil, errors.New("tracing: endpoint is required")
	case cfg.Timeout <= 0:
		return nil, errors.New("tracing: timeout must be positive")
	}

	log = logger.Component(log, "tracing")
	exp, err := in.exporter(ctx, endpoint, secure, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: exporter: %w", err)
	}
	exp = &lossyExporter{SpanExporter: exp, report: func(err error, n int) {
		in.onExportError(log, err, endpoint, n)
	}}

	res, err := resource.New(ctx, resource.WithAttributes(serviceAttrs(svc)...))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg)),
	)
	otel.SetTracerProvider(tp)
	log.Info("tracing enabled", "endpoint", endpoint, "sampler", cfg.Sampler, "sample_rate", cfg.SampleRate)

	return func(ctx context.Context) error {
		return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
	}, nil
}

func serviceAttrs(svc Service) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(svc.Name),
		semconv.ServiceVersion(svc.Version),
	}
	if svc.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(svc.Environment))
	}
	return attrs
}

func otlpExporter(ctx context.Context, endpoint string, secure bool, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if !secure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// lossyExporter reports failed batches and drops them, so a collector
// outage never surfaces as a request error.
type lossyExporter struct {
	sdktrace.SpanExporter
	report func(err error, spans int)
}

func (e *lossyExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if err := e.SpanExporter.ExportSpans(ctx, spans); err != nil {
		e.report(err, len(spans))
	}
	return nil
}

func sampler(cfg config.TracingConfig) sdktrace.Sampler {
	ratio := sdktrace.TraceIDRatioBased(cfg.SampleRate)
	switch strings.ToLower(strings.TrimSpace(cfg.Sampler)) {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "ratio":
		return ratio
	}
	return sdktrace.ParentBased(ratio)
}

// parseEndpoint reduces a collector URL to host:port. secure is true only
// for an explicit https scheme; a bare host:port is used as is.
func parseEndpoint(endpoint string) (hostPort string, secure bool) {
	raw := strings.TrimSpace(endpoint)
	if !strings.Contains(raw, "://") {
		return raw, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, false
	}
	return u.Host, u.Scheme == "https"
}
