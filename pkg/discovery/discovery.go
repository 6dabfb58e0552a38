// Package discovery registers the API and admin endpoints in etcd under a
// lease so that load balancers and the reconcile job can locate them.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/example/cmsshop/pkg/config"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

type ServiceDiscovery struct {
	client *clientv3.Client
	config *config.EtcdConfig
	logger *zap.Logger
}

type ServiceInstance struct {
	Name string
	Host string
	Port int
}

func (i *ServiceInstance) Addr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func NewServiceDiscovery(cfg *config.EtcdConfig, logger *zap.Logger) (*ServiceDiscovery, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	return &ServiceDiscovery{
		client: cli,
		config: cfg,
		logger: logger,
	}, nil
}

func instanceKey(prefix string, instance *ServiceInstance) string {
	return fmt.Sprintf("%s%s/%s", prefix, instance.Name, instance.Addr())
}

func (sd *ServiceDiscovery) leaseTTL() int64 {
	if sd.config.LeaseTTL <= 0 {
		return 30
	}
	return sd.config.LeaseTTL
}

// Register writes the instance under a lease that is kept alive until ctx is
// cancelled.
func (sd *ServiceDiscovery) Register(ctx context.Context, instance *ServiceInstance) error {
	lease, err := sd.client.Grant(ctx, sd.leaseTTL())
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	_, err = sd.client.Put(ctx, instanceKey(sd.config.Prefix, instance), instance.Addr(), clientv3.WithLease(lease.ID))
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, kaerr := sd.client.KeepAlive(ctx, lease.ID)
	if kaerr != nil {
		return fmt.Errorf("failed to keep alive: %w", kaerr)
	}

	go func() {
		for range ch {
		}
		sd.logger.Info("Service lease keep-alive stopped", zap.String("service", instance.Name))
	}()

	sd.logger.Info("Service registered",
		zap.String("service", instance.Name),
		zap.String("addr", instance.Addr()),
		zap.Int64("lease_ttl", sd.leaseTTL()))
	return nil
}

func (sd *ServiceDiscovery) Discover(ctx context.Context, serviceName string) ([]*ServiceInstance, error) {
	key := fmt.Sprintf("%s%s/", sd.config.Prefix, serviceName)

	resp, err := sd.client.Get(ctx, key, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover service: %w", err)
	}

	var instances []*ServiceInstance
	for _, kv := range resp.Kvs {
		inst, err := parseInstance(serviceName, string(kv.Value))
		if err != nil {
			sd.logger.Warn("Skipping malformed service entry", zap.String("key", string(kv.Key)), zap.Error(err))
			continue
		}
		instances = append(instances, inst)
	}

	return instances, nil
}

func parseInstance(name, addr string) (*ServiceInstance, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return &ServiceInstance{Name: name, Host: host, Port: port}, nil
}

func (sd *ServiceDiscovery) Deregister(ctx context.Context, instance *ServiceInstance) error {
	_, err := sd.client.Delete(ctx, instanceKey(sd.config.Prefix, instance))
	if err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	return nil
}

func (sd *ServiceDiscovery) Close() error {
	return sd.client.Close()
}
