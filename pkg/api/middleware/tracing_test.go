package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/vedmemory/ved/pkg/storage"
)

func spanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_RouteNameAndUser(t *testing.T) {
	rec := spanRecorder(t)

	r := chi.NewRouter()
	r.Use(RequestID(), Tracing(DefaultUntracedPaths...))
	r.With(Auth(staticAuth{u: &storage.User{ID: 4}})).Delete("/api/v1/projects/{projectID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/projects/12", nil)
	req.Header.Set("Authorization", "Bearer t")
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "DELETE /api/v1/projects/{projectID}", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())

	route, _ := attr(spans[0], "http.route")
	assert.Equal(t, "/api/v1/projects/{projectID}", route.AsString())
	status, _ := attr(spans[0], "http.response.status_code")
	assert.Equal(t, int64(http.StatusNoContent), status.AsInt64())
	user, ok := attr(spans[0], "ved.user_id")
	require.True(t, ok)
	assert.Equal(t, int64(4), user.AsInt64())
	id, _ := attr(spans[0], "http.request_id")
	assert.NotEmpty(t, id.AsString())
}

func TestTracing_ContinuesCallerTrace(t *testing.T) {
	rec := spanRecorder(t)
	h := Tracing()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
	assert.Equal(t, "GET /api/v1/projects", spans[0].Name())
}

func TestTracing_UnmatchedPathCollapsesIDs(t *testing.T) {
	rec := spanRecorder(t)
	h := Tracing()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/projects/42", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/projects/{id}", spans[0].Name())
	route, ok := attr(spans[0], "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/projects/{id}", route.AsString())
}

func TestTracing_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   otelcodes.Code
	}{
		{http.StatusOK, otelcodes.Unset},
		{http.StatusUnauthorized, otelcodes.Unset},
		{http.StatusBadGateway, otelcodes.Error},
	}
	for _, tt := range tests {
		rec := spanRecorder(t)
		h := Tracing()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

		spans := rec.Ended()
		require.Len(t, spans, 1)
		if got := spans[0].Status().Code; got != tt.want {
			t.Errorf("status %d: span code = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTracing_SkipsProbes(t *testing.T) {
	rec := spanRecorder(t)
	h := Tracing(DefaultUntracedPaths...)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for _, p := range DefaultUntracedPaths {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	assert.Empty(t, rec.Ended())
}
