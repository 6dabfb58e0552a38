package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/cmsshop/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormRepository struct{ db *gorm.DB }

func NewGormRepository(db *gorm.DB) *GormRepository { return &GormRepository{db: db} }

func (r *GormRepository) Transaction(ctx context.Context, fn func(r Repository) error) error {
	var fnErr error
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&GormRepository{db: tx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return err
}

func (r *GormRepository) Get(ctx context.Context, id string) (*models.Menu, error) {
	var m models.Menu
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &m, nil
}

// GetForUpdate reads the row with SELECT ... FOR UPDATE.
func (r *GormRepository) GetForUpdate(ctx context.Context, id string) (*models.Menu, error) {
	var m models.Menu
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &m, nil
}

func (r *GormRepository) List(ctx context.Context) ([]models.Menu, error) {
	var out []models.Menu
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return out, nil
}

func (r *GormRepository) Create(ctx context.Context, m *models.Menu) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (r *GormRepository) Save(ctx context.Context, m *models.Menu) error {
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// Delete sets the soft-delete marker.
func (r *GormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Menu{})
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorage, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepository) CountChildren(ctx context.Context, id string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Menu{}).Where("parent_menu_id = ?", id).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return n, nil
}
