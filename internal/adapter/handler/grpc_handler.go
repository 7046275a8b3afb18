package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-deduct/internal/port"
)

// HealthReporter keeps the gRPC health service in step with the stores the
// configured strategy depends on.
type HealthReporter struct {
	server  *health.Server
	service string
	pingers map[string]port.Pinger
	logger  *zap.Logger
}

func NewHealthReporter(server *health.Server, service string, pingers map[string]port.Pinger, logger *zap.Logger) *HealthReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthReporter{server: server, service: service, pingers: pingers, logger: logger}
}

// Check pings every store once and publishes the result for both the named
// service and the server as a whole.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("store unreachable", zap.String("store", name), zap.Error(err))
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	h.server.SetServingStatus(h.service, status)
	h.server.SetServingStatus("", status)
	return status
}

// Run calls Check every interval until ctx is done.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		h.Check(checkCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
