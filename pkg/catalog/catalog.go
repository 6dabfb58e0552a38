// Package catalog manages products, their purchasable variants and the
// shipping addresses of users.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/cmsshop/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid catalog input")
	ErrStorage      = errors.New("catalog storage failure")
)

type Query struct {
	Q      string
	Limit  int
	Offset int
}

func (q Query) normalized() Query {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	q.Q = strings.TrimSpace(q.Q)
	return q
}

type Repository interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context, q Query) ([]models.Product, error)
	GetVariant(ctx context.Context, id string) (*models.Variant, error)
	SaveVariant(ctx context.Context, v *models.Variant) error

	CreateAddress(ctx context.Context, a *models.Address) error
	ListAddresses(ctx context.Context, userID string) ([]models.Address, error)
	// SetPrimaryAddress makes id the user's only primary address.
	SetPrimaryAddress(ctx context.Context, userID, id string) (*models.Address, error)
}

type Service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type VariantInput struct {
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type ProductInput struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	CategoryID  *string        `json:"category_id"`
	Variants    []VariantInput `json:"variants"`
}

func validVariant(v VariantInput) error {
	if strings.TrimSpace(v.SKU) == "" {
		return fmt.Errorf("%w: variant sku is required", ErrInvalidInput)
	}
	if v.Price.IsNegative() {
		return fmt.Errorf("%w: variant %s has a negative price", ErrInvalidInput, v.SKU)
	}
	if v.Stock < 0 {
		return fmt.Errorf("%w: variant %s has negative stock", ErrInvalidInput, v.SKU)
	}
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Variants) == 0 {
		return nil, fmt.Errorf("%w: at least one variant is required", ErrInvalidInput)
	}

	p := &models.Product{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		CategoryID:  in.CategoryID,
	}
	for _, v := range in.Variants {
		if err := validVariant(v); err != nil {
			return nil, err
		}
		p.Variants = append(p.Variants, models.Variant{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			SKU:       strings.TrimSpace(v.SKU),
			Name:      v.Name,
			Price:     v.Price,
			Stock:     v.Stock,
		})
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Product created", zap.String("product_id", p.ID), zap.Int("variants", len(p.Variants)))
	return p, nil
}

func (s *Service) Product(ctx context.Context, id string) (*models.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) Products(ctx context.Context, q Query) ([]models.Product, error) {
	return s.repo.ListProducts(ctx, q.normalized())
}

type VariantUpdate struct {
	Name  *string          `json:"name"`
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock"`
}

// UpdateVariant changes price and stock. Existing cart lines keep their
// snapshot price until they are touched again, which is what lets checkout
// detect a stale cart.
func (s *Service) UpdateVariant(ctx context.Context, id string, in VariantUpdate) (*models.Variant, error) {
	v, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		v.Name = *in.Name
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return nil, fmt.Errorf("%w: negative price", ErrInvalidInput)
		}
		v.Price = *in.Price
	}
	if in.Stock != nil {
		if *in.Stock < 0 {
			return nil, fmt.Errorf("%w: negative stock", ErrInvalidInput)
		}
		v.Stock = *in.Stock
	}
	if err := s.repo.SaveVariant(ctx, v); err != nil {
		return nil, err
	}
	s.logger.Info("Variant updated",
		zap.String("variant_id", v.ID),
		zap.String("price", v.Price.StringFixed(2)),
		zap.Int("stock", v.Stock))
	return v, nil
}

type AddressInput struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Primary    bool   `json:"is_primary"`
}

// CreateAddress stores a new address. The user's first address, or one
// created with Primary set, becomes the primary address.
func (s *Service) CreateAddress(ctx context.Context, userID string, in AddressInput) (*models.Address, error) {
	if strings.TrimSpace(in.Line1) == "" || strings.TrimSpace(in.City) == "" || strings.TrimSpace(in.Country) == "" {
		return nil, fmt.Errorf("%w: line1, city and country are required", ErrInvalidInput)
	}

	existing, err := s.repo.ListAddresses(ctx, userID)
	if err != nil {
		return nil, err
	}

	a := &models.Address{
		ID:         uuid.NewString(),
		UserID:     userID,
		Line1:      in.Line1,
		Line2:      in.Line2,
		City:       in.City,
		PostalCode: in.PostalCode,
		Country:    in.Country,
	}
	if err := s.repo.CreateAddress(ctx, a); err != nil {
		return nil, err
	}
	if in.Primary || len(existing) == 0 {
		return s.repo.SetPrimaryAddress(ctx, userID, a.ID)
	}
	return a, nil
}

func (s *Service) Addresses(ctx context.Context, userID string) ([]models.Address, error) {
	return s.repo.ListAddresses(ctx, userID)
}

func (s *Service) SetPrimaryAddress(ctx context.Context, userID, id string) (*models.Address, error) {
	return s.repo.SetPrimaryAddress(ctx, userID, id)
}
