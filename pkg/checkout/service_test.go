package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/cmsshop/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var alice = Customer{ID: "u-alice", Email: "alice@example.com"}

type fixture struct {
	store *memStore
	proc  *fakeProcessor
	svc   *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := newMemStore()
	proc := newFakeProcessor()
	store.addVariant("v-a", "10.00", 10)
	store.addVariant("v-b", "5.00", 10)
	store.addPrimaryAddress(alice.ID)
	svc := NewService(store, proc, zap.NewNop(), opts...)
	return &fixture{store: store, proc: proc, svc: svc}
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.AddToCart(ctx, alice.ID, "v-a", 2)
	require.NoError(t, err)
	_, err = f.svc.AddToCart(ctx, alice.ID, "v-b", 1)
	require.NoError(t, err)
}

func (f *fixture) succeeded(eventID, sessionID string) {
	f.proc.event = &Event{ID: eventID, Type: "checkout.session.completed", Kind: EventPaymentSucceeded, SessionID: sessionID}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPlaceOrderTotalsAndItems(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)

	p, err := f.svc.PlaceOrder(context.Background(), alice)
	require.NoError(t, err)
	require.NotNil(t, p.Session)

	assert.True(t, p.Order.TotalAmount.Equal(dec("25.00")), "total %s", p.Order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, p.Order.Status)
	assert.Equal(t, "addr-"+alice.ID, p.Order.AddressID)
	require.Len(t, p.Order.Items, 2)

	prices := map[string]decimal.Decimal{}
	for _, it := range p.Order.Items {
		assert.Equal(t, p.Order.ID, it.OrderID)
		prices[it.VariantID] = it.PriceAtPurchase
	}
	assert.True(t, prices["v-a"].Equal(dec("10.00")))
	assert.True(t, prices["v-b"].Equal(dec("5.00")))

	require.Len(t, f.proc.requests, 1)
	req := f.proc.requests[0]
	assert.True(t, req.Amount.Equal(dec("25.00")))
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, p.Order.ID, req.Metadata()[MetaOrderID])
	assert.Equal(t, alice.ID, req.Metadata()[MetaUserID])

	stored, err := f.store.GetOrder(context.Background(), p.Order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Payments, 1)
	assert.Equal(t, models.PaymentStatusPending, stored.Payments[0].Status)
	assert.Equal(t, p.Session.ID, stored.Payments[0].SessionID)

	// the cart survives until payment is confirmed
	cart, err := f.svc.Cart(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 2)
}

func TestPlaceOrderStaleCart(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.store.setPrice("v-a", "12.00")

	p, err := f.svc.PlaceOrder(context.Background(), alice)
	assert.ErrorIs(t, err, ErrCartStale)
	assert.Nil(t, p)
	assert.Equal(t, 0, f.store.orderCount())
	assert.Empty(t, f.proc.requests)
}

func TestPlaceOrderPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("address required", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.AddToCart(ctx, "u-bob", "v-a", 1)
		require.NoError(t, err)
		_, err = f.svc.PlaceOrder(ctx, Customer{ID: "u-bob", Email: "bob@example.com"})
		assert.ErrorIs(t, err, ErrAddressRequired)
	})

	t.Run("empty cart", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.PlaceOrder(ctx, alice)
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("line without variant", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t)
		f.store.mu.Lock()
		delete(f.store.variants, "v-b")
		f.store.mu.Unlock()

		_, err := f.svc.PlaceOrder(ctx, alice)
		assert.ErrorIs(t, err, ErrInvalidLine)
		assert.Equal(t, 0, f.store.orderCount())
	})
}

func TestPlaceOrderProcessorFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.proc.createErr = errors.New("processor unavailable")

	p, err := f.svc.PlaceOrder(context.Background(), alice)
	assert.ErrorIs(t, err, ErrProcessor)
	require.NotNil(t, p)
	assert.Nil(t, p.Session)
	assert.Equal(t, 1, f.store.orderCount())

	f.svc.now = func() time.Time { return f.store.clock.Add(time.Hour) }
	unpaid, err := f.svc.FindUnpaidOrders(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, p.Order.ID, unpaid[0].ID)

	f.proc.createErr = nil
	session, err := f.svc.ReopenSession(context.Background(), p.Order.ID)
	require.NoError(t, err)
	assert.True(t, session.Amount.Equal(dec("25.00")))

	unpaid, err = f.svc.FindUnpaidOrders(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, unpaid)
}

func TestPaymentRowFailureStillReturnsSession(t *testing.T) {
	f := newFixture(t)
	f.fillCart(t)
	f.store.failCreatePayment = ErrStorage

	p, err := f.svc.PlaceOrder(context.Background(), alice)
	require.NoError(t, err)
	require.NotNil(t, p.Session)
}

func TestPaymentSucceededIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	f.proc.pay(p.Session.ID, alice.Email)
	f.succeeded("evt_1", p.Session.ID)
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))

	f.succeeded("evt_2", p.Session.ID)
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))

	o, err := f.store.GetOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, o.Status)

	completed := 0
	for _, pay := range o.Payments {
		if pay.Status == models.PaymentStatusCompleted {
			completed++
			require.NotNil(t, pay.TransactionID)
			assert.Equal(t, "pi_"+p.Session.ID, *pay.TransactionID)
			assert.Equal(t, "card", pay.Method)
		}
	}
	assert.Equal(t, 1, completed)

	cart, err := f.svc.Cart(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
	assert.True(t, cart.Total.IsZero())
}

func TestPaymentSucceededEmailMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	f.proc.pay(p.Session.ID, "mallory@example.com")
	f.succeeded("evt_1", p.Session.ID)
	err = f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature)
	assert.ErrorIs(t, err, ErrUnauthorized)

	o, err := f.store.GetOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, o.Status)
}

func TestPaymentSucceededEmailCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	f.proc.pay(p.Session.ID, "Alice@Example.COM")
	f.succeeded("evt_1", p.Session.ID)
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))

	o, err := f.store.GetOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, o.Status)
}

func TestPaymentSucceededRejectsUnexpectedStates(t *testing.T) {
	ctx := context.Background()

	t.Run("session unpaid", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t)
		p, err := f.svc.PlaceOrder(ctx, alice)
		require.NoError(t, err)

		f.succeeded("evt_1", p.Session.ID)
		err = f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature)
		assert.ErrorIs(t, err, ErrUnexpectedPaymentState)
	})

	t.Run("order cancelled", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t)
		p, err := f.svc.PlaceOrder(ctx, alice)
		require.NoError(t, err)
		_, err = f.store.CancelOrder(ctx, p.Order.ID, p.Session.ID)
		require.NoError(t, err)

		f.proc.pay(p.Session.ID, alice.Email)
		f.succeeded("evt_1", p.Session.ID)
		err = f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature)
		assert.ErrorIs(t, err, ErrUnexpectedPaymentState)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t)
		p, err := f.svc.PlaceOrder(ctx, alice)
		require.NoError(t, err)

		f.proc.pay(p.Session.ID, alice.Email)
		f.proc.sessions[p.Session.ID].AmountTotal = dec("1.00")
		f.succeeded("evt_1", p.Session.ID)
		err = f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature)
		assert.ErrorIs(t, err, ErrUnexpectedPaymentState)

		o, err := f.store.GetOrder(ctx, p.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, o.Status)
	})

	t.Run("missing metadata", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t)
		p, err := f.svc.PlaceOrder(ctx, alice)
		require.NoError(t, err)

		f.proc.pay(p.Session.ID, alice.Email)
		delete(f.proc.sessions[p.Session.ID].Metadata, MetaOrderID)
		f.succeeded("evt_1", p.Session.ID)
		err = f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature)
		assert.ErrorIs(t, err, ErrMissingMetadata)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		f.proc.sessions["cs_x"] = &SessionDetails{
			ID:            "cs_x",
			PaymentStatus: PaymentStatusPaid,
			AmountTotal:   dec("3.00"),
			Metadata:      map[string]string{MetaOrderID: "missing", MetaCustomerEmail: alice.Email},
		}
		f.succeeded("evt_1", "cs_x")
		err := f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature)
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})

	t.Run("processor lookup fails", func(t *testing.T) {
		f := newFixture(t)
		f.proc.getErr = errors.New("timeout")
		f.succeeded("evt_1", "cs_x")
		err := f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature)
		assert.ErrorIs(t, err, ErrProcessor)
	})
}

func TestPaymentFailedCancelsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	f.proc.event = &Event{
		ID:        "evt_fail",
		Type:      "checkout.session.async_payment_failed",
		Kind:      EventPaymentFailed,
		SessionID: p.Session.ID,
		Metadata:  map[string]string{MetaOrderID: p.Order.ID},
	}
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))

	o, err := f.store.GetOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, o.Status)
	require.Len(t, o.Payments, 1)
	assert.Equal(t, models.PaymentStatusFailed, o.Payments[0].Status)

	// a cancelled order does not come back to life
	f.proc.pay(p.Session.ID, alice.Email)
	f.succeeded("evt_late", p.Session.ID)
	assert.ErrorIs(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature), ErrUnexpectedPaymentState)
}

func TestPaymentFailedWithoutOrderID(t *testing.T) {
	f := newFixture(t)
	f.proc.event = &Event{ID: "evt_1", Kind: EventPaymentFailed, SessionID: "cs_x"}
	assert.NoError(t, f.svc.HandlePaymentNotification(context.Background(), []byte("{}"), goodSignature))
}

func TestNotificationSignatureAndIgnoredEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.proc.event = &Event{ID: "evt_1", Type: "customer.created", Kind: EventIgnored}

	err := f.svc.HandlePaymentNotification(ctx, []byte("{}"), "t=1,v1=forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))
}

func TestNotificationDeduplication(t *testing.T) {
	ctx := context.Background()
	log := &memEventLog{seen: map[string]bool{}}
	f := newFixture(t, WithEventLog(log))
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	// a failed delivery is not recorded, so the retry is processed
	f.succeeded("evt_1", p.Session.ID)
	assert.ErrorIs(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature), ErrUnexpectedPaymentState)
	assert.False(t, log.seen["evt_1"])

	f.proc.pay(p.Session.ID, alice.Email)
	f.proc.onRetrieve = func() error {
		assert.False(t, log.seen["evt_1"], "event recorded before processing finished")
		return nil
	}
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))
	assert.True(t, log.seen["evt_1"])

	// a redelivery never reaches the processor
	f.proc.getErr = errors.New("must not be called")
	assert.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))
}

func TestRedeliveryDuringFailedAttemptIsProcessed(t *testing.T) {
	ctx := context.Background()
	log := &memEventLog{seen: map[string]bool{}}
	f := newFixture(t, WithEventLog(log))
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)
	f.proc.pay(p.Session.ID, alice.Email)
	f.succeeded("evt_1", p.Session.ID)

	var redelivery error
	f.proc.onRetrieve = func() error {
		redelivery = f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature)
		return errors.New("timeout")
	}

	assert.ErrorIs(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature), ErrProcessor)
	require.NoError(t, redelivery)

	o, err := f.store.GetOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, o.Status)
	assert.True(t, log.seen["evt_1"])
}

func TestDeclinedAttemptThenPaidRetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	// the card decline arrives as an ignored event and the session stays open
	f.proc.event = &Event{
		ID:       "evt_decline",
		Type:     "payment_intent.payment_failed",
		Kind:     EventIgnored,
		Metadata: map[string]string{MetaOrderID: p.Order.ID},
	}
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))

	f.proc.pay(p.Session.ID, alice.Email)
	f.succeeded("evt_paid", p.Session.ID)
	require.NoError(t, f.svc.HandlePaymentNotification(ctx, []byte("{}"), goodSignature))

	o, err := f.store.GetOrder(ctx, p.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, o.Status)
}

func TestOrderQueriesAreScopedToOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)

	o, err := f.svc.Order(ctx, alice.ID, p.Order.ID)
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)

	_, err = f.svc.Order(ctx, "u-bob", p.Order.ID)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	list, err := f.svc.Orders(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestReopenSessionRequiresPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fillCart(t)
	p, err := f.svc.PlaceOrder(ctx, alice)
	require.NoError(t, err)
	_, err = f.store.CancelOrder(ctx, p.Order.ID, p.Session.ID)
	require.NoError(t, err)

	_, err = f.svc.ReopenSession(ctx, p.Order.ID)
	assert.ErrorIs(t, err, ErrUnexpectedPaymentState)

	_, err = f.svc.ReopenSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
