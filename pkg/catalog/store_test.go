package catalog

import (
	"context"
	"testing"

	"github.com/example/cmsshop/pkg/config"
	"github.com/example/cmsshop/pkg/database"
	"github.com/example/cmsshop/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Database: ":memory:", MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestGormStoreProducts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewGormStore(openTestDB(t)), zap.NewNop())

	p, err := svc.CreateProduct(ctx, ProductInput{
		Name:        "Linen Shirt",
		Description: "breathable",
		Variants: []VariantInput{
			{SKU: "LS-S", Name: "S", Price: decimal.RequireFromString("39.90"), Stock: 4},
			{SKU: "LS-M", Name: "M", Price: decimal.RequireFromString("39.90"), Stock: 2},
		},
	})
	require.NoError(t, err)

	got, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Variants, 2)
	assert.True(t, got.Variants[0].Price.Equal(decimal.RequireFromString("39.90")))

	found, err := svc.Products(ctx, Query{Q: "linen"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p.ID, found[0].ID)

	none, err := svc.Products(ctx, Query{Q: "wool"})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.Product(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	price := decimal.RequireFromString("29.90")
	stock := 9
	v, err := svc.UpdateVariant(ctx, got.Variants[0].ID, VariantUpdate{Price: &price, Stock: &stock})
	require.NoError(t, err)
	assert.Equal(t, 9, v.Stock)

	again, err := svc.Product(ctx, p.ID)
	require.NoError(t, err)
	for _, variant := range again.Variants {
		if variant.ID == v.ID {
			assert.True(t, variant.Price.Equal(price))
			assert.Equal(t, 9, variant.Stock)
		}
	}
}

func TestGormStoreAddressesKeepOnePrimary(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewGormStore(openTestDB(t)), zap.NewNop())
	in := AddressInput{Line1: "1 Main St", City: "Springfield", Country: "US"}

	first, err := svc.CreateAddress(ctx, "u1", in)
	require.NoError(t, err)
	assert.True(t, first.IsPrimary)

	second, err := svc.CreateAddress(ctx, "u1", in)
	require.NoError(t, err)
	assert.False(t, second.IsPrimary)

	other, err := svc.CreateAddress(ctx, "u2", in)
	require.NoError(t, err)
	assert.True(t, other.IsPrimary)

	_, err = svc.SetPrimaryAddress(ctx, "u1", second.ID)
	require.NoError(t, err)

	list, err := svc.Addresses(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	primaries := 0
	for _, a := range list {
		if a.IsPrimary {
			primaries++
			assert.Equal(t, second.ID, a.ID)
		}
	}
	assert.Equal(t, 1, primaries)

	// another user's address is not reachable
	_, err = svc.SetPrimaryAddress(ctx, "u1", other.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	theirs, err := svc.Addresses(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.True(t, theirs[0].IsPrimary)
}
