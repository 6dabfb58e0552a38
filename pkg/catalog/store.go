package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/cmsshop/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return storageErr(err)
}

func (r *GormStore) CreateProduct(ctx context.Context, p *models.Product) error {
	// Create with associations inserts the variants in the same transaction.
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *GormStore) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).Preload("Variants").Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFoundOr(err, "product "+id)
	}
	return &p, nil
}

func (r *GormStore) ListProducts(ctx context.Context, q Query) ([]models.Product, error) {
	db := r.db.WithContext(ctx).Preload("Variants")
	if q.Q != "" {
		like := "%" + q.Q + "%"
		db = db.Where("name LIKE ? OR description LIKE ?", like, like)
	}
	out := []models.Product{}
	if err := db.Order("created_at DESC").Limit(q.Limit).Offset(q.Offset).Find(&out).Error; err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func (r *GormStore) GetVariant(ctx context.Context, id string) (*models.Variant, error) {
	var v models.Variant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, notFoundOr(err, "variant "+id)
	}
	return &v, nil
}

func (r *GormStore) SaveVariant(ctx context.Context, v *models.Variant) error {
	if err := r.db.WithContext(ctx).Save(v).Error; err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *GormStore) CreateAddress(ctx context.Context, a *models.Address) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return storageErr(err)
	}
	return nil
}

func (r *GormStore) ListAddresses(ctx context.Context, userID string) ([]models.Address, error) {
	out := []models.Address{}
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, storageErr(err)
	}
	return out, nil
}

func (r *GormStore) SetPrimaryAddress(ctx context.Context, userID, id string) (*models.Address, error) {
	var out models.Address
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = func() error {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ? AND user_id = ?", id, userID).First(&out).Error; err != nil {
				return notFoundOr(err, "address "+id)
			}
			if err := tx.Model(&models.Address{}).
				Where("user_id = ? AND id <> ?", userID, id).
				Update("is_primary", false).Error; err != nil {
				return storageErr(err)
			}
			if err := tx.Model(&out).Update("is_primary", true).Error; err != nil {
				return storageErr(err)
			}
			return nil
		}()
		return fnErr
	})
	if err != nil {
		if fnErr == nil {
			return nil, storageErr(err)
		}
		return nil, err
	}
	out.IsPrimary = true
	return &out, nil
}
