package checkout

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/cmsshop/pkg/models"
	"github.com/shopspring/decimal"
)

// memStore implements Store in memory, serializing every call.
type memStore struct {
	mu        sync.Mutex
	variants  map[string]models.Variant
	lines     map[string]models.CartLine
	addresses map[string]models.Address
	orders    map[string]models.Order
	items     map[string][]models.OrderItem
	payments  []models.Payment
	clock     time.Time

	failCreatePayment error
}

func newMemStore() *memStore {
	return &memStore{
		variants:  make(map[string]models.Variant),
		lines:     make(map[string]models.CartLine),
		addresses: make(map[string]models.Address),
		orders:    make(map[string]models.Order),
		items:     make(map[string][]models.OrderItem),
		clock:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func lineKey(userID, variantID string) string { return userID + "/" + variantID }

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) addVariant(id, price string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[id] = models.Variant{ID: id, SKU: id, Price: decimal.RequireFromString(price), Stock: stock}
}

func (s *memStore) setPrice(id, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.variants[id]
	v.Price = decimal.RequireFromString(price)
	s.variants[id] = v
}

func (s *memStore) addPrimaryAddress(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[userID] = models.Address{ID: "addr-" + userID, UserID: userID, IsPrimary: true}
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) MutateCartLine(ctx context.Context, userID, variantID string, fn func(v *models.Variant, line *models.CartLine) (*models.CartLine, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.variants[variantID]
	if !ok {
		return ErrVariantNotFound
	}
	var current *models.CartLine
	if l, ok := s.lines[lineKey(userID, variantID)]; ok {
		current = &l
	}
	next, err := fn(&v, current)
	if err != nil {
		return err
	}
	next.Recompute()
	if current == nil {
		next.CreatedAt = s.tick()
	}
	s.lines[lineKey(userID, variantID)] = *next
	return nil
}

func (s *memStore) DeleteCartLine(ctx context.Context, userID, variantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[lineKey(userID, variantID)]; !ok {
		return ErrLineNotFound
	}
	delete(s.lines, lineKey(userID, variantID))
	return nil
}

func (s *memStore) CartLines(ctx context.Context, userID string) ([]models.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CartLine
	for _, l := range s.lines {
		if l.UserID != userID {
			continue
		}
		if v, ok := s.variants[l.VariantID]; ok {
			vv := v
			l.Variant = &vv
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) PrimaryAddress(ctx context.Context, userID string) (*models.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.addresses[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memStore) CreateOrder(ctx context.Context, o *models.Order, items []models.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.CreatedAt = s.tick()
	s.orders[o.ID] = *o
	s.items[o.ID] = append([]models.OrderItem(nil), items...)
	return nil
}

func (s *memStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreatePayment != nil {
		return s.failCreatePayment
	}
	p.CreatedAt = s.tick()
	s.payments = append(s.payments, *p)
	return nil
}

func (s *memStore) paymentsOf(orderID string) []models.Payment {
	var out []models.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Items = append([]models.OrderItem(nil), s.items[id]...)
	o.Payments = s.paymentsOf(id)
	return &o, nil
}

func (s *memStore) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ConfirmPayment(ctx context.Context, o *models.Order, p *models.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if cur.Status != models.OrderStatusPending {
		return false, nil
	}
	cur.Status = models.OrderStatusProcessing
	s.orders[o.ID] = cur
	p.CreatedAt = s.tick()
	s.payments = append(s.payments, *p)
	for k, l := range s.lines {
		if l.UserID == cur.UserID {
			delete(s.lines, k)
		}
	}
	return true, nil
}

func (s *memStore) CancelOrder(ctx context.Context, orderID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if cur.Status != models.OrderStatusPending {
		return false, nil
	}
	cur.Status = models.OrderStatusCancelled
	s.orders[orderID] = cur
	for i, p := range s.payments {
		if p.OrderID == orderID && p.SessionID == sessionID && p.Status == models.PaymentStatusPending {
			s.payments[i].Status = models.PaymentStatusFailed
		}
	}
	return true, nil
}

func (s *memStore) OrdersWithoutPayment(ctx context.Context, createdBefore time.Time) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(createdBefore) && len(s.paymentsOf(o.ID)) == 0 {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

const goodSignature = "t=1,v1=good"

// fakeProcessor hands out sequential sessions and verifies a fixed signature.
type fakeProcessor struct {
	mu        sync.Mutex
	requests  []SessionRequest
	sessions  map[string]*SessionDetails
	event     *Event
	createErr error
	getErr    error

	// onRetrieve runs once, before the next RetrieveSession lookup.
	onRetrieve func() error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{sessions: make(map[string]*SessionDetails)}
}

func (p *fakeProcessor) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.requests = append(p.requests, req)
	id := "cs_" + req.OrderID
	p.sessions[id] = &SessionDetails{
		ID:            id,
		PaymentStatus: "unpaid",
		AmountTotal:   req.Amount,
		Currency:      req.Currency,
		Metadata:      req.Metadata(),
	}
	return &Session{ID: id, RedirectURL: "https://pay.example/" + id, Amount: req.Amount, Currency: req.Currency}, nil
}

func (p *fakeProcessor) VerifyEvent(payload []byte, signature string) (*Event, error) {
	if signature != goodSignature || p.event == nil {
		return nil, errors.New("no signatures found matching the expected signature")
	}
	ev := *p.event
	return &ev, nil
}

func (p *fakeProcessor) RetrieveSession(ctx context.Context, sessionID string) (*SessionDetails, error) {
	p.mu.Lock()
	hook := p.onRetrieve
	p.onRetrieve = nil
	p.mu.Unlock()
	if hook != nil {
		if err := hook(); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	s, ok := p.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such checkout session")
	}
	cp := *s
	return &cp, nil
}

// pay marks the session as paid by the given email.
func (p *fakeProcessor) pay(sessionID, email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.sessions[sessionID]
	s.PaymentStatus = PaymentStatusPaid
	s.PaymentMethod = "card"
	s.TransactionID = "pi_" + sessionID
	s.CustomerEmail = email
	if email != "" {
		s.Metadata[MetaCustomerEmail] = email
	}
}

type memEventLog struct {
	seen map[string]bool
}

func (l *memEventLog) EventProcessed(ctx context.Context, id string) (bool, error) {
	return l.seen[id], nil
}

func (l *memEventLog) MarkEventProcessed(ctx context.Context, id string) error {
	l.seen[id] = true
	return nil
}
