package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vedmemory/ved/pkg/logger"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "ved.Memory"

// Checker reports whether the process can serve requests, typically by
// pinging storage.
type Checker func(ctx context.Context) error

// HealthServer wraps the gRPC health server and keeps it in sync with a Checker.
type HealthServer struct {
	server *health.Server
	check  Checker
	log    logger.Logger
}

// NewHealthServer creates a health server. A nil check always reports healthy.
func NewHealthServer(check Checker, log logger.Logger) *HealthServer {
	return &HealthServer{
		server: health.NewServer(),
		check:  check,
		log:    log,
	}
}

// SetServingStatusAll sets the status of the overall server and ServiceName.
func (h *HealthServer) SetServingStatusAll(status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}

// Probe runs the checker once and publishes the result.
func (h *HealthServer) Probe(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if h.check != nil {
		if err := h.check(ctx); err != nil {
			h.log.Warn("health probe failed", "error", err)
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}
	h.SetServingStatusAll(status)
	return status
}

// Watch probes every interval until ctx is done.
func (h *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, interval)
			h.Probe(probeCtx)
			cancel()
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores further updates.
func (h *HealthServer) Shutdown() {
	h.server.Shutdown()
}

// GetServer returns the underlying health server for registration.
func (h *HealthServer) GetServer() *health.Server {
	return h.server
}
