package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/cmsshop/gateway"
	"github.com/example/cmsshop/pkg/database"
	"github.com/example/cmsshop/pkg/discovery"
	admin "github.com/example/cmsshop/pkg/grpc"
	"github.com/example/cmsshop/pkg/models"
	"github.com/example/cmsshop/pkg/reconcile"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	var (
		migrate           bool
		reconcileInterval time.Duration
		unpaidAge         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the admin gRPC server and the reconcile job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			logger := a.logger

			logger.Info("Starting cmsshop",
				zap.String("name", a.cfg.Server.Name),
				zap.Int("port", a.cfg.Server.Port),
				zap.String("version", Version))

			if migrate {
				if err := models.AutoMigrate(a.db); err != nil {
					return err
				}
				logger.Info("Schema migrated")
			}

			rec, err := reconcile.Start(a.checkout, logger.Named("reconcile"), 2*time.Minute)
			if err != nil {
				return err
			}
			defer rec.Stop()
			if reconcileInterval > 0 {
				go rec.Run(ctx, reconcileInterval, unpaidAge)
			}

			probes := map[string]admin.Probe{
				"database": func(ctx context.Context) error { return database.Ping(ctx, a.db) },
			}
			if a.redis != nil {
				probes["redis"] = a.redis.Ping
			}
			if a.mongo != nil {
				probes["mongodb"] = a.mongo.Ping
			}
			adminSrv := admin.NewAdminServer(&a.cfg.GRPC, logger.Named("admin"), probes)
			go adminSrv.Watch(ctx, 15*time.Second)

			services := gateway.Services{
				Menus:      a.menus,
				Catalog:    a.catalog,
				Checkout:   a.checkout,
				Reconciler: rec,
			}
			if a.mongo != nil {
				services.Audit = a.mongo
			}
			gw := gateway.NewGateway(a.cfg, logger.Named("http"), services)

			errCh := make(chan error, 2)
			go func() { errCh <- adminSrv.Start() }()
			go func() { errCh <- gw.Start() }()

			instances := []*discovery.ServiceInstance{
				{Name: a.cfg.Server.Name, Host: a.cfg.Server.Host, Port: a.cfg.Server.Port},
				{Name: adminServiceName(a.cfg.Server.Name), Host: a.cfg.GRPC.Host, Port: a.cfg.GRPC.Port},
			}
			var sd *discovery.ServiceDiscovery
			if a.cfg.Etcd.Enabled {
				sd, err = discovery.NewServiceDiscovery(&a.cfg.Etcd, logger.Named("discovery"))
				if err != nil {
					logger.Warn("Service discovery unavailable", zap.Error(err))
				} else {
					defer sd.Close()
					for _, inst := range instances {
						if err := sd.Register(ctx, inst); err != nil {
							logger.Error("Failed to register service", zap.String("service", inst.Name), zap.Error(err))
						}
					}
				}
			}

			select {
			case <-ctx.Done():
				logger.Info("Received shutdown signal")
			case err := <-errCh:
				if err != nil {
					logger.Error("Server error", zap.Error(err))
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if sd != nil {
				for _, inst := range instances {
					if err := sd.Deregister(shutdownCtx, inst); err != nil {
						logger.Error("Failed to deregister service", zap.String("service", inst.Name), zap.Error(err))
					}
				}
			}
			if err := gw.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown failed", zap.Error(err))
			}
			adminSrv.Stop()

			logger.Info("Service stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run schema migration before serving")
	cmd.Flags().DurationVar(&reconcileInterval, "reconcile-interval", 5*time.Minute, "how often to reopen sessions for unpaid orders (0 disables)")
	cmd.Flags().DurationVar(&unpaidAge, "unpaid-age", 15*time.Minute, "minimum age of an unpaid order before it is reconciled")
	return cmd
}
