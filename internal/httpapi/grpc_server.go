package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"fitapp.dev/internal/obs"
)

// GRPCHealth serves grpc.health.v1.Health for both the empty (whole server)
// service name and serviceName, driven by the same probe as /readyz.
type GRPCHealth struct {
	srv       *health.Server
	readiness readinessChecker
	log       *zap.Logger
}

// NewGRPCHealth creates the health service. Status starts NOT_SERVING until
// the first Refresh.
func NewGRPCHealth(r readinessChecker, log *zap.Logger) *GRPCHealth {
	if r == nil {
		r = ReadyProbe{}
	}
	if log == nil {
		log = obs.Logger()
	}
	h := &GRPCHealth{
		srv:       health.NewServer(),
		readiness: r,
		log:       log,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register attaches the health service to s.
func (h *GRPCHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.srv)
}

// Refresh evaluates readiness once and publishes the result.
func (h *GRPCHealth) Refresh(ctx context.Context) {
	if err := h.readiness.Check(ctx); err != nil {
		h.log.Warn("grpc health: not ready", zap.Error(err))
		obs.SetReady(false)
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	obs.SetReady(true)
	h.set(healthpb.HealthCheckResponse_SERVING)
}

// Run refreshes status every interval until ctx is done, then marks the
// server as shutting down.
func (h *GRPCHealth) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	h.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

func (h *GRPCHealth) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(serviceName, status)
}
