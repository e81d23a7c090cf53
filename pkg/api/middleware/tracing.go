package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const httpTracerName = "ved.http"

// DefaultUntracedPaths are probe endpoints that never get a span.
var DefaultUntracedPaths = []string{"/health", "/ready", "/status", "/metrics"}

// Tracing starts a server span per request, continuing any W3C trace
// context sent by the caller. The span is renamed to "METHOD /route/{pattern}"
// once chi has matched, or to the id-collapsed path when nothing matched.
func Tracing(skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipped[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := otel.Tracer(httpTracerName).Start(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("http.request_id", GetRequestID(ctx)),
				),
			)
			defer span.End()

			sw := wrapWriter(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(sw, r)

			route := routeLabel(r)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", sw.Status()),
			)
			if info := infoFrom(ctx); info != nil && info.userID != 0 {
				span.SetAttributes(attribute.Int64("ved.user_id", info.userID))
			}
			// 4xx is the caller's fault and leaves the span unset.
			if sw.Status() >= http.StatusInternalServerError {
				span.SetStatus(otelcodes.Error, http.StatusText(sw.Status()))
			}
		})
	}
}

// routeOf returns the matched chi pattern, or "" when nothing matched.
func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
