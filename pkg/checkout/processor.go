package checkout

import (
	"context"

	"github.com/shopspring/decimal"
)

// Metadata keys attached to every checkout session so the asynchronous
// notification can be correlated with the order.
const (
	MetaOrderID       = "order_id"
	MetaUserID        = "user_id"
	MetaCustomerEmail = "customer_email"
)

const PaymentStatusPaid = "paid"

type EventKind string

const (
	EventPaymentSucceeded EventKind = "payment_succeeded"
	EventPaymentFailed    EventKind = "payment_failed"
	EventIgnored          EventKind = "ignored"
)

type SessionRequest struct {
	OrderID       string
	UserID        string
	CustomerEmail string
	Amount        decimal.Decimal
	Currency      string
}

func (r SessionRequest) Metadata() map[string]string {
	md := map[string]string{
		MetaOrderID: r.OrderID,
		MetaUserID:  r.UserID,
	}
	if r.CustomerEmail != "" {
		md[MetaCustomerEmail] = r.CustomerEmail
	}
	return md
}

// Session is the handle returned when a checkout session is opened.
type Session struct {
	ID          string          `json:"session_id"`
	RedirectURL string          `json:"redirect_url"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// Event is a notification whose signature has been verified.
type Event struct {
	ID        string
	Type      string
	Kind      EventKind
	SessionID string
	Metadata  map[string]string
}

// SessionDetails is the processor's authoritative view of a session.
type SessionDetails struct {
	ID            string
	PaymentStatus string
	AmountTotal   decimal.Decimal
	Currency      string
	PaymentMethod string
	TransactionID string
	CustomerEmail string
	Metadata      map[string]string
}

// Processor is the payment processor contract consumed by the engine.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	VerifyEvent(payload []byte, signature string) (*Event, error)
	RetrieveSession(ctx context.Context, sessionID string) (*SessionDetails, error)
}
