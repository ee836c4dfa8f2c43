package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Resolution splits a tier kind's rows for one (product, variant) as of a
// date: the active row, rows scheduled after it, and historical rows before
// it (descending). Resolving never returns a future-dated row as active.
type Resolution[T TierRow] struct {
	Active    T
	HasActive bool
	Scheduled []T
	Previous  []T
}

// PricingSet is the desired state of all four tier kinds for one
// (product, variant), reconciled against the store in a single transaction.
type PricingSet struct {
	ProductID snowflake.ID
	VariantID snowflake.ID

	VariantPricing        []*VariantPricing
	AddonPlans            []*AddonPlan
	UserDiscountSlabs     []*UserDiscountSlab
	ValidityDiscountSlabs []*ValidityDiscountSlab
}

// Service resolves and reconciles pricing tiers against a tenant store.
type Service interface {
	ResolveVariantPricing(ctx context.Context, db *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (Resolution[*VariantPricing], error)
	ResolveAddonPlans(ctx context.Context, db *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (Resolution[*AddonPlan], error)
	ResolveUserDiscountSlabs(ctx context.Context, db *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (Resolution[*UserDiscountSlab], error)
	ResolveValidityDiscountSlabs(ctx context.Context, db *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (Resolution[*ValidityDiscountSlab], error)
	SavePricing(ctx context.Context, db *gorm.DB, set PricingSet) error
}
