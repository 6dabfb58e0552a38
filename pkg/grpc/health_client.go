package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/example/cmsshop/pkg/discovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ResolveTarget looks the admin endpoint of service up in etcd and falls back
// to fallback when discovery is disabled or has no entry.
func ResolveTarget(ctx context.Context, disc *discovery.ServiceDiscovery, service, fallback string, logger *zap.Logger) string {
	if disc == nil {
		return fallback
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	instances, err := disc.Discover(ctx, service)
	if err != nil || len(instances) == 0 {
		logger.Info("Using default admin address", zap.String("service", service), zap.String("address", fallback))
		return fallback
	}
	target := instances[0].Addr()
	logger.Info("Discovered admin endpoint", zap.String("service", service), zap.String("address", target))
	return target
}

// CheckHealth asks the health service at target for the status of service
// ("" for the whole process).
func CheckHealth(ctx context.Context, target, service string, opts ...grpc.DialOption) (healthpb.HealthCheckResponse_ServingStatus, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("failed to dial %s: %w", target, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
