package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsRecorder receives one observation per request. *metrics.Manager
// implements it.
type MetricsRecorder interface {
	RecordHTTPRequestContext(ctx context.Context, method, route, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// Metrics records request count, latency and in-flight requests. A panic is
// counted as a 500 and re-raised for Recovery.
func Metrics(rec MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec.IncActiveConnections()
			defer rec.DecActiveConnections()

			sw := wrapWriter(w)
			status := http.StatusInternalServerError
			defer func() {
				rec.RecordHTTPRequestContext(r.Context(), r.Method, routeLabel(r), strconv.Itoa(status), time.Since(start))
			}()

			next.ServeHTTP(sw, r)
			status = sw.Status()
		})
	}
}

// routeLabel keeps label cardinality bounded: the chi pattern when one
// matched, otherwise the path with numeric and UUID segments collapsed.
func routeLabel(r *http.Request) string {
	if route := routeOf(r); route != "" {
		return route
	}
	return normalizePath(r.URL.Path)
}

func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil || (len(p) == 36 && strings.Count(p, "-") == 4) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}
