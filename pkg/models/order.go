package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CartLine is one (user, variant) row of a shopping cart. TotalPrice is
// recomputed from Quantity and UnitPrice on every save.
type CartLine struct {
	ID         string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_user_variant" json:"user_id"`
	VariantID  string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_user_variant" json:"variant_id"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_price"`
	Variant    *Variant        `gorm:"foreignKey:VariantID" json:"variant,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (CartLine) TableName() string {
	return "cart_lines"
}

func (l *CartLine) Recompute() {
	l.TotalPrice = l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l *CartLine) BeforeSave(tx *gorm.DB) error {
	l.Recompute()
	return nil
}

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"
	OrderStatusProcessing OrderStatus = "Processing"
	OrderStatusCancelled  OrderStatus = "Cancelled"
)

type Order struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	AddressID     string          `gorm:"type:varchar(36);not null" json:"address_id"`
	CustomerEmail string          `gorm:"type:varchar(255)" json:"customer_email,omitempty"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Status        OrderStatus     `gorm:"type:varchar(20);not null;default:'Pending';index" json:"status"`
	Items         []OrderItem     `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Payments      []Payment       `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem captures the unit price at purchase time; it is never recomputed.
type OrderItem struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID         string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	VariantID       string          `gorm:"type:varchar(36);not null" json:"variant_id"`
	Quantity        int             `gorm:"not null" json:"quantity"`
	PriceAtPurchase decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price_at_purchase"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment rows form an append-only history per order.
type Payment struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrderID       string          `gorm:"type:varchar(36);not null;index" json:"order_id"`
	SessionID     string          `gorm:"type:varchar(255);index" json:"session_id,omitempty"`
	TransactionID *string         `gorm:"type:varchar(255)" json:"transaction_id,omitempty"`
	Method        string          `gorm:"type:varchar(64)" json:"method,omitempty"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(8);not null" json:"currency"`
	Status        PaymentStatus   `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
