package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Category struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (Category) TableName() string {
	return "categories"
}

type Product struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description,omitempty"`
	CategoryID  *string        `gorm:"type:varchar(36);index" json:"category_id,omitempty"`
	Variants    []Variant      `gorm:"foreignKey:ProductID" json:"variants,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Product) TableName() string {
	return "products"
}

// Variant is a purchasable configuration of a product with its own price and stock.
type Variant struct {
	ID        string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProductID string          `gorm:"type:varchar(36);not null;index" json:"product_id"`
	SKU       string          `gorm:"column:sku;type:varchar(64);uniqueIndex;not null" json:"sku"`
	Name      string          `gorm:"type:varchar(255)" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock     int             `gorm:"not null;default:0" json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Variant) TableName() string {
	return "product_variants"
}

type Address struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Line1      string    `gorm:"type:varchar(255);not null" json:"line1"`
	Line2      string    `gorm:"type:varchar(255)" json:"line2,omitempty"`
	City       string    `gorm:"type:varchar(128);not null" json:"city"`
	PostalCode string    `gorm:"type:varchar(32)" json:"postal_code"`
	Country    string    `gorm:"type:varchar(64);not null" json:"country"`
	IsPrimary  bool      `gorm:"not null;default:false" json:"is_primary"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Address) TableName() string {
	return "addresses"
}
