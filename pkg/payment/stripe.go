// Package payment adapts Stripe Checkout to the checkout.Processor contract.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/example/cmsshop/pkg/checkout"
	"github.com/example/cmsshop/pkg/config"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// Stripe event types the engine reacts to.
const (
	EventSessionCompleted      = "checkout.session.completed"
	EventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired        = "checkout.session.expired"
	EventPaymentIntentFailed   = "payment_intent.payment_failed"
)

// zeroDecimal lists currencies Stripe bills in whole units.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

func exponent(currency string) int32 {
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

// ToMinorUnits converts an amount to the integer unit Stripe bills in,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(exponent(currency)).Round(0).IntPart()
}

func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -exponent(currency))
}

type StripeProcessor struct {
	api    *client.API
	cfg    *config.PaymentConfig
	logger *zap.Logger
}

var _ checkout.Processor = (*StripeProcessor)(nil)

func NewStripeProcessor(cfg *config.PaymentConfig, logger *zap.Logger) *StripeProcessor {
	return &StripeProcessor{
		api:    client.New(cfg.SecretKey, nil),
		cfg:    cfg,
		logger: logger,
	}
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, req checkout.SessionRequest) (*checkout.Session, error) {
	params := sessionParams(p.cfg, req)
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	p.logger.Debug("Checkout session created",
		zap.String("session_id", s.ID),
		zap.String("order_id", req.OrderID))
	return &checkout.Session{
		ID:          s.ID,
		RedirectURL: s.URL,
		Amount:      FromMinorUnits(s.AmountTotal, string(s.Currency)),
		Currency:    string(s.Currency),
	}, nil
}

func sessionParams(cfg *config.PaymentConfig, req checkout.SessionRequest) *stripe.CheckoutSessionParams {
	md := req.Metadata()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(cfg.SuccessURL),
		CancelURL:         stripe.String(cfg.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(ToMinorUnits(req.Amount, req.Currency)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Order " + req.OrderID),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: md,
		},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range md {
		params.AddMetadata(k, v)
	}
	return params
}

// VerifyEvent checks the Stripe-Signature header and classifies the event.
func (p *StripeProcessor) VerifyEvent(payload []byte, signature string) (*checkout.Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, err
	}
	return mapEvent(ev)
}

func mapEvent(ev stripe.Event) (*checkout.Event, error) {
	out := &checkout.Event{ID: ev.ID, Type: string(ev.Type), Kind: checkout.EventIgnored}
	if ev.Data == nil {
		return out, nil
	}

	switch string(ev.Type) {
	case EventSessionCompleted, EventAsyncPaymentSucceeded, EventAsyncPaymentFailed, EventSessionExpired:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.SessionID = s.ID
		out.Metadata = s.Metadata

		switch string(ev.Type) {
		case EventSessionCompleted:
			// Delayed payment methods complete the session before the money
			// arrives; async_payment_succeeded follows for those.
			if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
				out.Kind = checkout.EventPaymentSucceeded
			}
		case EventAsyncPaymentSucceeded:
			out.Kind = checkout.EventPaymentSucceeded
		default:
			out.Kind = checkout.EventPaymentFailed
		}

	case EventPaymentIntentFailed:
		// A declined attempt leaves the session open for another try; only
		// async_payment_failed and expired end it.
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Metadata = pi.Metadata
	}
	return out, nil
}

// RetrieveSession fetches the session with its payment intent expanded.
func (p *StripeProcessor) RetrieveSession(ctx context.Context, sessionID string) (*checkout.SessionDetails, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := p.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve checkout session: %w", err)
	}
	return sessionDetails(s), nil
}

func sessionDetails(s *stripe.CheckoutSession) *checkout.SessionDetails {
	d := &checkout.SessionDetails{
		ID:            s.ID,
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   FromMinorUnits(s.AmountTotal, string(s.Currency)),
		Currency:      string(s.Currency),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if d.Metadata == nil {
		d.Metadata = map[string]string{}
	}
	if d.CustomerEmail == "" && s.CustomerDetails != nil {
		d.CustomerEmail = s.CustomerDetails.Email
	}
	if len(s.PaymentMethodTypes) > 0 {
		d.PaymentMethod = s.PaymentMethodTypes[0]
	}
	if s.PaymentIntent != nil {
		d.TransactionID = s.PaymentIntent.ID
		if s.PaymentIntent.PaymentMethod != nil && s.PaymentIntent.PaymentMethod.Type != "" {
			d.PaymentMethod = string(s.PaymentIntent.PaymentMethod.Type)
		}
	}
	return d
}
