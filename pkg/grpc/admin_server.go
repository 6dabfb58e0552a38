// Package grpc exposes the operational endpoint of the service: the standard
// gRPC health protocol fed by dependency probes, plus server reflection.
package grpc

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/example/cmsshop/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

type AdminServer struct {
	addr   string
	srv    *grpc.Server
	health *health.Server
	probes map[string]Probe
	logger *zap.Logger
}

func NewAdminServer(cfg *config.GRPCConfig, logger *zap.Logger, probes map[string]Probe) *AdminServer {
	srv := grpc.NewServer(grpc.UnaryInterceptor(unaryLogger(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &AdminServer{
		addr:   cfg.Addr(),
		srv:    srv,
		health: hs,
		probes: probes,
		logger: logger,
	}
	for name := range probes {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Refresh runs every probe once. The overall status ("") is SERVING only
// when all probes pass.
func (s *AdminServer) Refresh(ctx context.Context) {
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		st := healthpb.HealthCheckResponse_SERVING
		if err := s.probes[name](ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = st
			s.logger.Warn("Dependency probe failed", zap.String("dependency", name), zap.Error(err))
		}
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", overall)
}

// Watch refreshes the probes every interval until ctx is done.
func (s *AdminServer) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

func (s *AdminServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

func (s *AdminServer) Serve(lis net.Listener) error {
	s.logger.Info("Admin gRPC server listening", zap.String("address", lis.Addr().String()))
	return s.srv.Serve(lis)
}

func (s *AdminServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("gRPC request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)))
		return resp, err
	}
}
