package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"vehicle-rental-backend/internal/api/grpc/interceptor"
	"vehicle-rental-backend/internal/logger"
)

// ServiceName is the health-check service name reported for the booking backend.
const ServiceName = "vehicle-rental.booking"

// Pinger reports whether the storage backend is reachable.
type Pinger func(ctx context.Context) error

// NewServer builds the gRPC server that carries health checks and reflection.
func NewServer(hs *health.Server) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(interceptor.Unary()),
		grpc.StreamInterceptor(interceptor.Stream()),
	)
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)
	return s
}

// WatchHealth flips the serving status of ServiceName and the overall server with the
// result of ping, checking every interval until ctx is done.
func WatchHealth(ctx context.Context, hs *health.Server, ping Pinger, interval time.Duration) {
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		pctx, cancel := context.WithTimeout(ctx, interval)
		err := ping(pctx)
		cancel()
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("storage health check failed", "error", err)
		}
		hs.SetServingStatus(ServiceName, st)
		hs.SetServingStatus("", st)
	}

	update()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
