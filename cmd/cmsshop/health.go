package main

import (
	"context"
	"fmt"
	"time"

	"github.com/example/cmsshop/pkg/discovery"
	admin "github.com/example/cmsshop/pkg/grpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func healthCmd() *cobra.Command {
	var (
		target  string
		service string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the admin gRPC health endpoint of a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadBase()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			if target == "" {
				target = cfg.GRPC.Addr()
				if cfg.Etcd.Enabled {
					sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, logger)
					if err != nil {
						logger.Warn("Service discovery unavailable", zap.Error(err))
					} else {
						defer sd.Close()
						target = admin.ResolveTarget(ctx, sd, adminServiceName(cfg.Server.Name), target, logger)
					}
				}
			}

			status, err := admin.CheckHealth(ctx, target, service)
			if err != nil {
				return fmt.Errorf("health check against %s failed: %w", target, err)
			}
			fmt.Println(status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s is %s", target, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "admin gRPC address (default: etcd lookup, then grpc.host:grpc.port)")
	cmd.Flags().StringVar(&service, "service", "", "dependency to check (database, redis, mongodb); empty for overall status")
	return cmd
}

func adminServiceName(name string) string {
	return name + "-admin"
}
