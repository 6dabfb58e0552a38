// Package reconcile finds orders that never got a payment session and opens
// one for them. All work runs inside a single actor so sweeps triggered by the
// timer, the CLI and the admin endpoint never overlap.
package reconcile

import (
	"context"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/cmsshop/pkg/checkout"
	"github.com/example/cmsshop/pkg/models"
	"go.uber.org/zap"
)

// Reconciler is implemented by checkout.Service.
type Reconciler interface {
	FindUnpaidOrders(ctx context.Context, age time.Duration) ([]models.Order, error)
	ReopenSession(ctx context.Context, orderID string) (*checkout.Session, error)
}

// Messages
type FindUnpaid struct {
	Age time.Duration
}

type UnpaidOrders struct {
	Orders []models.Order
	Err    error
}

type Reopen struct {
	OrderID string
}

type Reopened struct {
	OrderID string
	Session *checkout.Session
	Err     error
}

// Sweep reopens a session for every unpaid order older than Age.
type Sweep struct {
	Age time.Duration
}

type SweepResult struct {
	Found    int               `json:"found"`
	Reopened []string          `json:"reopened"`
	Failed   map[string]string `json:"failed"`
	Err      error             `json:"-"`
}

type ReconcileActor struct {
	rec     Reconciler
	timeout time.Duration
	logger  *zap.Logger
}

func (a *ReconcileActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *FindUnpaid:
		c, cancel := context.WithTimeout(context.Background(), a.timeout)
		orders, err := a.rec.FindUnpaidOrders(c, msg.Age)
		cancel()
		ctx.Respond(&UnpaidOrders{Orders: orders, Err: err})

	case *Reopen:
		ctx.Respond(a.reopen(msg.OrderID))

	case *Sweep:
		ctx.Respond(a.sweep(msg.Age))

	case *actor.Started:
		a.logger.Info("Reconcile actor started")

	case *actor.Stopping:
		a.logger.Info("Reconcile actor stopping")
	}
}

func (a *ReconcileActor) reopen(orderID string) *Reopened {
	c, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	session, err := a.rec.ReopenSession(c, orderID)
	if err != nil {
		a.logger.Warn("Failed to reopen payment session", zap.String("order_id", orderID), zap.Error(err))
	} else {
		a.logger.Info("Payment session reopened",
			zap.String("order_id", orderID),
			zap.String("session_id", session.ID))
	}
	return &Reopened{OrderID: orderID, Session: session, Err: err}
}

func (a *ReconcileActor) sweep(age time.Duration) *SweepResult {
	c, cancel := context.WithTimeout(context.Background(), a.timeout)
	orders, err := a.rec.FindUnpaidOrders(c, age)
	cancel()

	res := &SweepResult{Reopened: []string{}, Failed: map[string]string{}}
	if err != nil {
		a.logger.Error("Failed to list unpaid orders", zap.Error(err))
		res.Err = err
		return res
	}

	res.Found = len(orders)
	for _, o := range orders {
		r := a.reopen(o.ID)
		if r.Err != nil {
			res.Failed[o.ID] = r.Err.Error()
			continue
		}
		res.Reopened = append(res.Reopened, o.ID)
	}
	if res.Found > 0 {
		a.logger.Info("Reconciliation sweep finished",
			zap.Int("found", res.Found),
			zap.Int("reopened", len(res.Reopened)),
			zap.Int("failed", len(res.Failed)))
	}
	return res
}
