package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/cmsshop/pkg/checkout"
	"github.com/example/cmsshop/pkg/models"
	"go.uber.org/zap"
)

const actorName = "reconcile-actor"

// Service owns the actor system hosting the reconcile actor.
type Service struct {
	system  *actor.ActorSystem
	pid     *actor.PID
	timeout time.Duration
	logger  *zap.Logger
}

// Start spawns the reconcile actor. timeout bounds each request, including a
// whole sweep.
func Start(rec Reconciler, logger *zap.Logger, timeout time.Duration) (*Service, error) {
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &ReconcileActor{rec: rec, timeout: timeout, logger: logger}
	})
	pid, err := system.Root.SpawnNamed(props, actorName)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn reconcile actor: %w", err)
	}

	return &Service{system: system, pid: pid, timeout: timeout, logger: logger}, nil
}

func (s *Service) request(msg interface{}) (interface{}, error) {
	return s.system.Root.RequestFuture(s.pid, msg, s.timeout).Result()
}

func (s *Service) FindUnpaid(age time.Duration) ([]models.Order, error) {
	res, err := s.request(&FindUnpaid{Age: age})
	if err != nil {
		return nil, err
	}
	r, ok := res.(*UnpaidOrders)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %T", res)
	}
	return r.Orders, r.Err
}

func (s *Service) Reopen(orderID string) (*checkout.Session, error) {
	res, err := s.request(&Reopen{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	r, ok := res.(*Reopened)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %T", res)
	}
	return r.Session, r.Err
}

func (s *Service) Sweep(age time.Duration) (*SweepResult, error) {
	res, err := s.request(&Sweep{Age: age})
	if err != nil {
		return nil, err
	}
	r, ok := res.(*SweepResult)
	if !ok {
		return nil, fmt.Errorf("unexpected reply %T", res)
	}
	return r, r.Err
}

// Run sweeps every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval, age time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(age); err != nil {
				s.logger.Error("Reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) Stop() {
	s.system.Root.Stop(s.pid)
}
