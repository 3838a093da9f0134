package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	log "github.com/sirupsen/logrus"
)

// Check probes a dependency. A nil error means the dependency is serving.
type Check func(ctx context.Context) error

// HealthServiceArgs are the mandatory args to instantiate the HealthService.
type HealthServiceArgs struct {
	// Checks are probed periodically, keyed by the service name reported on grpc.health.v1.
	Checks map[string]Check
}

// HealthServiceOptArgs are the optional args of the HealthService.
type HealthServiceOptArgs = func(*HealthService)

// WithInterval sets the period between probes.
func WithInterval(d time.Duration) HealthServiceOptArgs {
	return func(h *HealthService) {
		if d > 0 {
			h.interval = d
		}
	}
}

// HealthService reports the status of the process dependencies on grpc.health.v1. The overall status,
// service "", is serving only when every check is.
type HealthService struct {
	server   *health.Server
	checks   map[string]Check
	interval time.Duration
}

// NewHealthService creates a new HealthService. Every service starts as not serving.
func NewHealthService(args HealthServiceArgs, opts ...HealthServiceOptArgs) *HealthService {
	h := &HealthService{
		server:   health.NewServer(),
		checks:   args.Checks,
		interval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for name := range h.checks {
		h.server.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return h
}

// Register registers the health service and reflection on s.
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
	reflection.Register(s)
}

// Probe runs every check once and updates the statuses.
func (h *HealthService) Probe(ctx context.Context) {
	overall := healthpb.HealthCheckResponse_SERVING
	for name, check := range h.checks {
		status := healthpb.HealthCheckResponse_SERVING
		if err := check(ctx); err != nil {
			log.WithError(err).WithField("service", name).Warn("health check failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = status
		}
		h.server.SetServingStatus(name, status)
	}
	h.server.SetServingStatus("", overall)
}

// Run probes every interval until ctx is done. This is a blocking method.
func (h *HealthService) Run(ctx context.Context) {
	h.Probe(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

// Check returns the status of service, as a grpc client would see it.
func (h *HealthService) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
