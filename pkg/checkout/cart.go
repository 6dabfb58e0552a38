package checkout

import (
	"context"
	"fmt"

	"github.com/example/cmsshop/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cart is a user's cart lines with the sum of their stored totals.
type Cart struct {
	UserID string            `json:"user_id"`
	Lines  []models.CartLine `json:"lines"`
	Total  decimal.Decimal   `json:"total"`
}

// AddToCart adds qty units of a variant, merging with an existing line for
// the same variant. The resulting quantity may not exceed the variant stock.
func (s *Service) AddToCart(ctx context.Context, userID, variantID string, qty int) (*models.CartLine, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidQuantity)
	}

	var out *models.CartLine
	err := s.store.MutateCartLine(ctx, userID, variantID, func(v *models.Variant, line *models.CartLine) (*models.CartLine, error) {
		if line == nil {
			line = &models.CartLine{
				ID:        uuid.NewString(),
				UserID:    userID,
				VariantID: variantID,
			}
		}
		next := line.Quantity + qty
		if next > v.Stock {
			return nil, fmt.Errorf("%w: requested %d, %d in stock", ErrStockExceeded, next, v.Stock)
		}
		line.Quantity = next
		line.UnitPrice = v.Price
		line.Recompute()
		out = line
		return line, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Cart line added",
		zap.String("user_id", userID),
		zap.String("variant_id", variantID),
		zap.Int("quantity", out.Quantity))
	return out, nil
}

// UpdateCartLine sets the quantity of an existing line.
func (s *Service) UpdateCartLine(ctx context.Context, userID, variantID string, qty int) (*models.CartLine, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidQuantity)
	}

	var out *models.CartLine
	err := s.store.MutateCartLine(ctx, userID, variantID, func(v *models.Variant, line *models.CartLine) (*models.CartLine, error) {
		if line == nil {
			return nil, ErrLineNotFound
		}
		if qty > v.Stock {
			return nil, fmt.Errorf("%w: requested %d, %d in stock", ErrStockExceeded, qty, v.Stock)
		}
		line.Quantity = qty
		line.UnitPrice = v.Price
		line.Recompute()
		out = line
		return line, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) RemoveCartLine(ctx context.Context, userID, variantID string) error {
	return s.store.DeleteCartLine(ctx, userID, variantID)
}

func (s *Service) Cart(ctx context.Context, userID string) (*Cart, error) {
	lines, err := s.store.CartLines(ctx, userID)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.TotalPrice)
	}
	if lines == nil {
		lines = []models.CartLine{}
	}
	return &Cart{UserID: userID, Lines: lines, Total: total}, nil
}
