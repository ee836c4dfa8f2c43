package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/licentia/internal/pricing/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newPricingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(
		&domain.VariantPricing{},
		&domain.AddonPlan{},
		&domain.UserDiscountSlab{},
		&domain.ValidityDiscountSlab{},
	))
	return conn
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveVariantPricing_ActiveAndHistory(t *testing.T) {
	conn := newPricingTestDB(t)
	node, _ := snowflake.NewNode(1)
	svc := NewService(zap.NewNop(), node)

	productID := node.Generate()
	variantID := node.Generate()

	for _, from := range []time.Time{
		date(2024, time.January, 1),
		date(2024, time.June, 1),
		date(2025, time.January, 1),
	} {
		require.NoError(t, conn.Create(&domain.VariantPricing{
			ID:            node.Generate(),
			ProductID:     productID,
			VariantID:     variantID,
			EffectiveFrom: from,
			PriceCents:    1000,
		}).Error)
	}

	res, err := svc.ResolveVariantPricing(context.Background(), conn, productID, variantID, date(2024, time.August, 15))
	require.NoError(t, err)

	require.True(t, res.HasActive)
	assert.Equal(t, date(2024, time.June, 1), res.Active.EffectiveFrom)

	require.Len(t, res.Previous, 1)
	assert.Equal(t, date(2024, time.January, 1), res.Previous[0].EffectiveFrom)

	require.Len(t, res.Scheduled, 1)
	assert.Equal(t, date(2025, time.January, 1), res.Scheduled[0].EffectiveFrom)
}

func TestResolveVariantPricing_NeverReturnsFutureActive(t *testing.T) {
	conn := newPricingTestDB(t)
	node, _ := snowflake.NewNode(1)
	svc := NewService(zap.NewNop(), node)

	productID := node.Generate()
	variantID := node.Generate()

	require.NoError(t, conn.Create(&domain.VariantPricing{
		ID:            node.Generate(),
		ProductID:     productID,
		VariantID:     variantID,
		EffectiveFrom: date(2030, time.January, 1),
		PriceCents:    1000,
	}).Error)

	res, err := svc.ResolveVariantPricing(context.Background(), conn, productID, variantID, date(2024, time.August, 15))
	require.NoError(t, err)
	assert.False(t, res.HasActive)
	assert.Len(t, res.Scheduled, 1)
}

func TestSavePricing_Reconciliation(t *testing.T) {
	conn := newPricingTestDB(t)
	node, _ := snowflake.NewNode(1)
	svc := NewService(zap.NewNop(), node)

	productID := node.Generate()
	variantID := node.Generate()

	kept := &domain.VariantPricing{
		ID:            node.Generate(),
		ProductID:     productID,
		VariantID:     variantID,
		EffectiveFrom: date(2024, time.January, 1),
		PriceCents:    1000,
	}
	dropped := &domain.VariantPricing{
		ID:            node.Generate(),
		ProductID:     productID,
		VariantID:     variantID,
		EffectiveFrom: date(2024, time.March, 1),
		PriceCents:    2000,
	}
	require.NoError(t, conn.Create(kept).Error)
	require.NoError(t, conn.Create(dropped).Error)

	kept.PriceCents = 1500
	added := &domain.VariantPricing{
		EffectiveFrom: date(2024, time.June, 1),
		PriceCents:    3000,
	}

	err := svc.SavePricing(context.Background(), conn, domain.PricingSet{
		ProductID:      productID,
		VariantID:      variantID,
		VariantPricing: []*domain.VariantPricing{kept, added},
	})
	require.NoError(t, err)

	// Inserted rows get their generated id written back.
	assert.NotZero(t, added.ID)

	var rows []domain.VariantPricing
	require.NoError(t, conn.Where("product_id = ?", productID).Order("effective_from ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, kept.ID, rows[0].ID)
	assert.Equal(t, int64(1500), rows[0].PriceCents)
	assert.Equal(t, added.ID, rows[1].ID)

	var droppedCount int64
	conn.Model(&domain.VariantPricing{}).Where("id = ?", dropped.ID).Count(&droppedCount)
	assert.Zero(t, droppedCount)
}

func TestSavePricing_RejectsDuplicateEffectiveFrom(t *testing.T) {
	conn := newPricingTestDB(t)
	node, _ := snowflake.NewNode(1)
	svc := NewService(zap.NewNop(), node)

	productID := node.Generate()
	variantID := node.Generate()

	err := svc.SavePricing(context.Background(), conn, domain.PricingSet{
		ProductID: productID,
		VariantID: variantID,
		AddonPlans: []*domain.AddonPlan{
			{EffectiveFrom: date(2024, time.January, 1), AddonType: "extra_users", AddonValue: 5, PriceCents: 100},
			{EffectiveFrom: date(2024, time.January, 1), AddonType: "extra_users", AddonValue: 10, PriceCents: 180},
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestSavePricing_AtomicAcrossTierKinds(t *testing.T) {
	conn := newPricingTestDB(t)
	node, _ := snowflake.NewNode(1)
	svc := NewService(zap.NewNop(), node)

	productID := node.Generate()
	variantID := node.Generate()

	// The slab duplicate fails after the variant pricing insert; the shared
	// transaction must roll everything back.
	err := svc.SavePricing(context.Background(), conn, domain.PricingSet{
		ProductID: productID,
		VariantID: variantID,
		VariantPricing: []*domain.VariantPricing{
			{EffectiveFrom: date(2024, time.January, 1), PriceCents: 1000},
		},
		UserDiscountSlabs: []*domain.UserDiscountSlab{
			{EffectiveFrom: date(2024, time.January, 1), MinUsers: 1, MaxUsers: 10, DiscountPct: 5},
			{EffectiveFrom: date(2024, time.January, 1), MinUsers: 11, MaxUsers: 20, DiscountPct: 10},
		},
	})
	require.Error(t, err)

	var count int64
	conn.Model(&domain.VariantPricing{}).Where("product_id = ?", productID).Count(&count)
	assert.Zero(t, count)
}
