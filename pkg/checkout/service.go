// Package checkout turns carts into orders, opens payment sessions with the
// processor and reconciles the processor's asynchronous notifications.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/cmsshop/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrAddressRequired        = errors.New("primary shipping address required")
	ErrInvalidLine            = errors.New("cart line has no resolvable price")
	ErrCartStale              = errors.New("cart totals are stale, refresh the cart")
	ErrInvalidSignature       = errors.New("invalid notification signature")
	ErrUnexpectedPaymentState = errors.New("unexpected payment state")
	ErrMissingMetadata        = errors.New("payment session metadata missing")
	ErrUnauthorized           = errors.New("payer does not match order customer")
	ErrOrderNotFound          = errors.New("order not found")
	ErrStockExceeded          = errors.New("quantity exceeds available stock")
	ErrVariantNotFound        = errors.New("variant not found")
	ErrLineNotFound           = errors.New("cart line not found")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrStorage                = errors.New("checkout storage failure")
	ErrProcessor              = errors.New("payment processor failure")
)

// Store is the persistence contract of the engine.
type Store interface {
	// MutateCartLine loads the variant and the user's existing line for it
	// (nil if none) under a row lock and persists the line fn returns.
	MutateCartLine(ctx context.Context, userID, variantID string, fn func(v *models.Variant, line *models.CartLine) (*models.CartLine, error)) error
	DeleteCartLine(ctx context.Context, userID, variantID string) error
	CartLines(ctx context.Context, userID string) ([]models.CartLine, error)

	// PrimaryAddress returns nil without error when the user has none.
	PrimaryAddress(ctx context.Context, userID string) (*models.Address, error)

	// CreateOrder writes the order and its items in one transaction.
	CreateOrder(ctx context.Context, o *models.Order, items []models.OrderItem) error
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)

	// ConfirmPayment moves a Pending order to Processing, appends p and
	// clears the owner's cart in one transaction. It reports false when the
	// order was no longer Pending.
	ConfirmPayment(ctx context.Context, o *models.Order, p *models.Payment) (bool, error)
	// CancelOrder moves a Pending order to Cancelled and fails the pending
	// payment row of sessionID. It reports false when the order was no
	// longer Pending.
	CancelOrder(ctx context.Context, orderID, sessionID string) (bool, error)
	OrdersWithoutPayment(ctx context.Context, createdBefore time.Time) ([]models.Order, error)
}

// EventLog remembers notification ids whose processing completed.
type EventLog interface {
	EventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string) error
}

type Auditor interface {
	Audit(ctx context.Context, action, entityID string, data map[string]interface{}) error
}

// Customer is the verified identity supplied by the authentication layer.
type Customer struct {
	ID    string
	Email string
}

// Placement is the result of PlaceOrder.
type Placement struct {
	Order   *models.Order `json:"order"`
	Session *Session      `json:"payment_session,omitempty"`
}

type Service struct {
	store     Store
	processor Processor
	events    EventLog
	audit     Auditor
	currency  string
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithEventLog(l EventLog) Option {
	return func(s *Service) { s.events = l }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

func WithCurrency(c string) Option {
	return func(s *Service) { s.currency = strings.ToLower(c) }
}

func NewService(store Store, processor Processor, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		processor: processor,
		currency:  "usd",
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder converts the customer's cart into a Pending order and opens a
// payment session for it. The order and its items are durable once written;
// opening the session happens afterwards. If that second step fails the
// placement is still returned, together with an error wrapping ErrProcessor,
// and the order is left for reconciliation. The cart is kept until the
// payment is confirmed.
func (s *Service) PlaceOrder(ctx context.Context, c Customer) (*Placement, error) {
	addr, err := s.store.PrimaryAddress(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if addr == nil {
		return nil, ErrAddressRequired
	}

	lines, err := s.store.CartLines(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	orderID := uuid.NewString()
	total := decimal.Zero
	stored := decimal.Zero
	items := make([]models.OrderItem, 0, len(lines))

	for _, l := range lines {
		if l.Variant == nil || l.Quantity < 1 || l.Variant.Price.IsNegative() {
			return nil, fmt.Errorf("%w: variant %s", ErrInvalidLine, l.VariantID)
		}
		price := l.Variant.Price
		total = total.Add(price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		stored = stored.Add(l.TotalPrice)
		items = append(items, models.OrderItem{
			ID:              uuid.NewString(),
			OrderID:         orderID,
			VariantID:       l.VariantID,
			Quantity:        l.Quantity,
			PriceAtPurchase: price,
		})
	}

	if !stored.Equal(total) {
		return nil, fmt.Errorf("%w: cart says %s, current prices give %s", ErrCartStale, stored.StringFixed(2), total.StringFixed(2))
	}

	order := &models.Order{
		ID:            orderID,
		UserID:        c.ID,
		AddressID:     addr.ID,
		CustomerEmail: c.Email,
		TotalAmount:   total,
		Status:        models.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, order, items); err != nil {
		return nil, err
	}
	order.Items = items

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", c.ID),
		zap.String("total", total.StringFixed(2)),
		zap.Int("items", len(items)))
	s.record(ctx, "place_order", order.ID, map[string]interface{}{
		"user_id":      c.ID,
		"total_amount": total.StringFixed(2),
		"items":        len(items),
	})

	placement := &Placement{Order: order}
	session, err := s.openSession(ctx, order)
	if err != nil {
		return placement, err
	}
	placement.Session = session
	return placement, nil
}

// openSession asks the processor for a checkout session and records a
// pending payment row. A failure to write the row is logged only: the order
// then shows up in OrdersWithoutPayment.
func (s *Service) openSession(ctx context.Context, order *models.Order) (*Session, error) {
	session, err := s.processor.CreateCheckoutSession(ctx, SessionRequest{
		OrderID:       order.ID,
		UserID:        order.UserID,
		CustomerEmail: order.CustomerEmail,
		Amount:        order.TotalAmount,
		Currency:      s.currency,
	})
	if err != nil {
		s.logger.Error("Failed to open checkout session", zap.String("order_id", order.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProcessor, err)
	}

	payment := &models.Payment{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		SessionID: session.ID,
		Amount:    session.Amount,
		Currency:  session.Currency,
		Status:    models.PaymentStatusPending,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		s.logger.Error("Failed to record pending payment",
			zap.String("order_id", order.ID),
			zap.String("session_id", session.ID),
			zap.Error(err))
	}
	return session, nil
}

// HandlePaymentNotification verifies and applies one processor notification.
// Only ErrInvalidSignature means the notification was rejected; every other
// error describes a processing failure for a notification that should still
// be acknowledged.
func (s *Service) HandlePaymentNotification(ctx context.Context, payload []byte, signature string) error {
	event, err := s.processor.VerifyEvent(payload, signature)
	if err != nil {
		s.logger.Warn("Rejected payment notification", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	if s.events != nil && event.ID != "" {
		done, err := s.events.EventProcessed(ctx, event.ID)
		if err != nil {
			log.Warn("Event de-duplication unavailable", zap.Error(err))
		} else if done {
			log.Info("Duplicate payment notification ignored")
			return nil
		}
	}

	// Concurrent deliveries of one event both run; the conditional status
	// updates in the store let only one of them apply.
	switch event.Kind {
	case EventPaymentSucceeded:
		err = s.confirmPayment(ctx, event)
	case EventPaymentFailed:
		err = s.cancelPayment(ctx, event)
	default:
		log.Debug("Payment notification ignored")
		return nil
	}

	if err != nil {
		log.Error("Payment notification processing failed", zap.Error(err))
		return err
	}
	if s.events != nil && event.ID != "" {
		if merr := s.events.MarkEventProcessed(ctx, event.ID); merr != nil {
			log.Warn("Failed to record processed event", zap.Error(merr))
		}
	}
	return nil
}

func (s *Service) confirmPayment(ctx context.Context, event *Event) error {
	details, err := s.processor.RetrieveSession(ctx, event.SessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProcessor, err)
	}
	if details.PaymentStatus != PaymentStatusPaid {
		return fmt.Errorf("%w: session %s is %q", ErrUnexpectedPaymentState, details.ID, details.PaymentStatus)
	}

	orderID := details.Metadata[MetaOrderID]
	payer := details.Metadata[MetaCustomerEmail]
	if payer == "" {
		payer = details.CustomerEmail
	}
	if orderID == "" || payer == "" {
		return fmt.Errorf("%w: session %s", ErrMissingMetadata, details.ID)
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.CustomerEmail != "" && !strings.EqualFold(order.CustomerEmail, payer) {
		return fmt.Errorf("%w: order %s", ErrUnauthorized, order.ID)
	}

	switch order.Status {
	case models.OrderStatusProcessing:
		s.logger.Info("Payment already confirmed", zap.String("order_id", order.ID))
		return nil
	case models.OrderStatusCancelled:
		return fmt.Errorf("%w: order %s is %s", ErrUnexpectedPaymentState, order.ID, order.Status)
	}

	if !details.AmountTotal.Equal(order.TotalAmount) {
		return fmt.Errorf("%w: paid %s, order total %s", ErrUnexpectedPaymentState,
			details.AmountTotal.StringFixed(2), order.TotalAmount.StringFixed(2))
	}

	payment := &models.Payment{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		SessionID: details.ID,
		Method:    details.PaymentMethod,
		Amount:    details.AmountTotal,
		Currency:  details.Currency,
		Status:    models.PaymentStatusCompleted,
	}
	if details.TransactionID != "" {
		tid := details.TransactionID
		payment.TransactionID = &tid
	}

	applied, err := s.store.ConfirmPayment(ctx, order, payment)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("Payment already confirmed", zap.String("order_id", order.ID))
		return nil
	}

	s.logger.Info("Payment confirmed",
		zap.String("order_id", order.ID),
		zap.String("session_id", details.ID),
		zap.String("amount", details.AmountTotal.StringFixed(2)))
	s.record(ctx, "confirm_payment", order.ID, map[string]interface{}{
		"session_id":     details.ID,
		"transaction_id": details.TransactionID,
		"amount":         details.AmountTotal.StringFixed(2),
		"currency":       details.Currency,
	})
	return nil
}

func (s *Service) cancelPayment(ctx context.Context, event *Event) error {
	orderID := event.Metadata[MetaOrderID]
	if orderID == "" {
		s.logger.Warn("Payment failure without order id", zap.String("event_id", event.ID))
		return nil
	}

	applied, err := s.store.CancelOrder(ctx, orderID, event.SessionID)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("Order not pending, cancellation skipped", zap.String("order_id", orderID))
		return nil
	}

	s.logger.Info("Order cancelled after failed payment", zap.String("order_id", orderID))
	s.record(ctx, "cancel_order", orderID, map[string]interface{}{
		"session_id": event.SessionID,
		"event_id":   event.ID,
	})
	return nil
}

// Order returns one of the user's orders.
func (s *Service) Order(ctx context.Context, userID, orderID string) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) Orders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.ListOrders(ctx, userID)
}

// FindUnpaidOrders lists Pending orders older than age that never got a
// payment row.
func (s *Service) FindUnpaidOrders(ctx context.Context, age time.Duration) ([]models.Order, error) {
	return s.store.OrdersWithoutPayment(ctx, s.now().Add(-age))
}

// ReopenSession opens a fresh checkout session for a Pending order.
func (s *Service) ReopenSession(ctx context.Context, orderID string) (*Session, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", ErrUnexpectedPaymentState, order.ID, order.Status)
	}
	return s.openSession(ctx, order)
}

func (s *Service) record(ctx context.Context, action, entityID string, data map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Audit(ctx, action, entityID, data); err != nil {
		s.logger.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
