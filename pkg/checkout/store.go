package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/cmsshop/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

// transaction runs fn in a database transaction. Errors returned by fn pass
// through untouched; begin and commit failures are reported as ErrStorage.
func (r *GormStore) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(tx)
		return fnErr
	})
	if err != nil && fnErr == nil {
		return storageErr(err)
	}
	return err
}

func (r *GormStore) MutateCartLine(ctx context.Context, userID, variantID string, fn func(v *models.Variant, line *models.CartLine) (*models.CartLine, error)) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		// Locking the variant row serializes concurrent writers of every
		// cart line that references it, including first inserts.
		var v models.Variant
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", variantID).First(&v).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVariantNotFound
			}
			return storageErr(err)
		}

		var current *models.CartLine
		var line models.CartLine
		err := tx.Where("user_id = ? AND variant_id = ?", userID, variantID).First(&line).Error
		switch {
		case err == nil:
			current = &line
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return storageErr(err)
		}

		next, err := fn(&v, current)
		if err != nil {
			return err
		}

		if current == nil {
			err = tx.Omit(clause.Associations).Create(next).Error
		} else {
			err = tx.Omit(clause.Associations).Save(next).Error
		}
		if err != nil {
			return storageErr(err)
		}
		return nil
	})
}

func (r *GormStore) DeleteCartLine(ctx context.Context, userID, variantID string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND variant_id = ?", userID, variantID).Delete(&models.CartLine{})
	if res.Error != nil {
		return storageErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *GormStore) CartLines(ctx context.Context, userID string) ([]models.CartLine, error) {
	var lines []models.CartLine
	if err := r.db.WithContext(ctx).
		Preload("Variant").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&lines).Error; err != nil {
		return nil, storageErr(err)
	}
	return lines, nil
}

func (r *GormStore) PrimaryAddress(ctx context.Context, userID string) (*models.Address, error) {
	var a models.Address
	if err := r.db.WithContext(ctx).Where("user_id = ? AND is_primary = ?", userID, true).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr(err)
	}
	return &a, nil
}

func (r *GormStore) CreateOrder(ctx context.Context, o *models.Order, items []models.OrderItem) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(o).Error; err != nil {
			return storageErr(err)
		}
		if len(items) == 0 {
			return nil
		}
		if err := tx.Create(&items).Error; err != nil {
			return storageErr(err)
		}
		return nil
	})
}

func (r *GormStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *GormStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, storageErr(err)
	}
	return &o, nil
}

func (r *GormStore) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	var out []models.Order
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func (r *GormStore) ConfirmPayment(ctx context.Context, o *models.Order, p *models.Payment) (bool, error) {
	applied := false
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", o.ID, models.OrderStatusPending).
			Update("status", models.OrderStatusProcessing)
		if res.Error != nil {
			return storageErr(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Create(p).Error; err != nil {
			return storageErr(err)
		}
		if err := tx.Where("user_id = ?", o.UserID).Delete(&models.CartLine{}).Error; err != nil {
			return storageErr(err)
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *GormStore) CancelOrder(ctx context.Context, orderID, sessionID string) (bool, error) {
	applied := false
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", orderID).First(&o).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return storageErr(err)
		}
		if o.Status != models.OrderStatusPending {
			return nil
		}

		if err := tx.Model(&o).Update("status", models.OrderStatusCancelled).Error; err != nil {
			return storageErr(err)
		}
		if sessionID != "" {
			if err := tx.Model(&models.Payment{}).
				Where("order_id = ? AND session_id = ? AND status = ?", orderID, sessionID, models.PaymentStatusPending).
				Update("status", models.PaymentStatusFailed).Error; err != nil {
				return storageErr(err)
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *GormStore) OrdersWithoutPayment(ctx context.Context, createdBefore time.Time) ([]models.Order, error) {
	var out []models.Order
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, createdBefore).
		Where("NOT EXISTS (SELECT 1 FROM payments WHERE payments.order_id = orders.id)").
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}
