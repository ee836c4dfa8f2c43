// Package domain contains the dated pricing tiers of a tenant store. Each
// tier kind forms a temporal append-log per (product, variant): the active
// row is the one with the greatest effective_from not in the future.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TierRow is implemented by all four tier kinds so resolution and
// reconciliation share one code path.
type TierRow interface {
	TierID() snowflake.ID
	SetTierID(id snowflake.ID)
	TierEffectiveFrom() time.Time
	SetTierScope(productID, variantID snowflake.ID)
}

// VariantPricing prices a product variant from a given date.
type VariantPricing struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	ProductID     snowflake.ID `gorm:"column:product_id;not null;index:ix_variant_pricing_scope,priority:1;uniqueIndex:ux_variant_pricing_from,priority:1"`
	VariantID     snowflake.ID `gorm:"column:variant_id;not null;index:ix_variant_pricing_scope,priority:2;uniqueIndex:ux_variant_pricing_from,priority:2"`
	EffectiveFrom time.Time    `gorm:"column:effective_from;not null;uniqueIndex:ux_variant_pricing_from,priority:3"`
	PriceCents    int64        `gorm:"column:price_cents;not null"`
	DiscountPct   float64      `gorm:"column:discount_pct;not null;default:0"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (VariantPricing) TableName() string { return "variant_pricing" }

func (t *VariantPricing) TierID() snowflake.ID          { return t.ID }
func (t *VariantPricing) SetTierID(id snowflake.ID)     { t.ID = id }
func (t *VariantPricing) TierEffectiveFrom() time.Time  { return t.EffectiveFrom }
func (t *VariantPricing) SetTierScope(productID, variantID snowflake.ID) {
	t.ProductID = productID
	t.VariantID = variantID
}

// AddonPlan prices a consumable add-on (extra seats, validity top-ups).
type AddonPlan struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	ProductID     snowflake.ID `gorm:"column:product_id;not null;index:ix_addon_plan_scope,priority:1;uniqueIndex:ux_addon_plan_from,priority:1"`
	VariantID     snowflake.ID `gorm:"column:variant_id;not null;index:ix_addon_plan_scope,priority:2;uniqueIndex:ux_addon_plan_from,priority:2"`
	EffectiveFrom time.Time    `gorm:"column:effective_from;not null;uniqueIndex:ux_addon_plan_from,priority:3"`
	AddonType     string       `gorm:"column:addon_type;type:text;not null"`
	AddonValue    int          `gorm:"column:addon_value;not null"`
	PriceCents    int64        `gorm:"column:price_cents;not null"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (AddonPlan) TableName() string { return "addon_plan" }

func (t *AddonPlan) TierID() snowflake.ID         { return t.ID }
func (t *AddonPlan) SetTierID(id snowflake.ID)    { t.ID = id }
func (t *AddonPlan) TierEffectiveFrom() time.Time { return t.EffectiveFrom }
func (t *AddonPlan) SetTierScope(productID, variantID snowflake.ID) {
	t.ProductID = productID
	t.VariantID = variantID
}

// UserDiscountSlab discounts by purchased seat count.
type UserDiscountSlab struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	ProductID     snowflake.ID `gorm:"column:product_id;not null;index:ix_user_slab_scope,priority:1;uniqueIndex:ux_user_slab_from,priority:1"`
	VariantID     snowflake.ID `gorm:"column:variant_id;not null;index:ix_user_slab_scope,priority:2;uniqueIndex:ux_user_slab_from,priority:2"`
	EffectiveFrom time.Time    `gorm:"column:effective_from;not null;uniqueIndex:ux_user_slab_from,priority:3"`
	MinUsers      int          `gorm:"column:min_users;not null"`
	MaxUsers      int          `gorm:"column:max_users;not null"`
	DiscountPct   float64      `gorm:"column:discount_pct;not null"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (UserDiscountSlab) TableName() string { return "user_discount_slab" }

func (t *UserDiscountSlab) TierID() snowflake.ID         { return t.ID }
func (t *UserDiscountSlab) SetTierID(id snowflake.ID)    { t.ID = id }
func (t *UserDiscountSlab) TierEffectiveFrom() time.Time { return t.EffectiveFrom }
func (t *UserDiscountSlab) SetTierScope(productID, variantID snowflake.ID) {
	t.ProductID = productID
	t.VariantID = variantID
}

// ValidityDiscountSlab discounts by extension length in months.
type ValidityDiscountSlab struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	ProductID     snowflake.ID `gorm:"column:product_id;not null;index:ix_validity_slab_scope,priority:1;uniqueIndex:ux_validity_slab_from,priority:1"`
	VariantID     snowflake.ID `gorm:"column:variant_id;not null;index:ix_validity_slab_scope,priority:2;uniqueIndex:ux_validity_slab_from,priority:2"`
	EffectiveFrom time.Time    `gorm:"column:effective_from;not null;uniqueIndex:ux_validity_slab_from,priority:3"`
	Months        int          `gorm:"column:months;not null"`
	DiscountPct   float64      `gorm:"column:discount_pct;not null"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (ValidityDiscountSlab) TableName() string { return "validity_discount_slab" }

func (t *ValidityDiscountSlab) TierID() snowflake.ID         { return t.ID }
func (t *ValidityDiscountSlab) SetTierID(id snowflake.ID)    { t.ID = id }
func (t *ValidityDiscountSlab) TierEffectiveFrom() time.Time { return t.EffectiveFrom }
func (t *ValidityDiscountSlab) SetTierScope(productID, variantID snowflake.ID) {
	t.ProductID = productID
	t.VariantID = variantID
}
