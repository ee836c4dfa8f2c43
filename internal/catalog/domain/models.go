// Package domain contains the sellable catalog inside a tenant store.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is a sellable software product. LicensePrefix is the two-character
// code license numbers start with, unique within the tenant.
type Product struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	Name          string       `gorm:"type:text;not null"`
	LicensePrefix string       `gorm:"column:license_prefix;type:varchar(2);not null;uniqueIndex:ux_product_license_prefix"`
	CreatedBy     snowflake.ID `gorm:"column:created_by;not null"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

func (Product) TableName() string { return "product_mast" }

// ProductVariant carries the seat-count and validity parameters a license of
// this variant starts with.
type ProductVariant struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	ProductID    snowflake.ID `gorm:"column:product_id;not null;index"`
	Name         string       `gorm:"type:text;not null"`
	UserCount    int          `gorm:"column:user_count;not null"`
	ValidityDays int          `gorm:"column:validity_days;not null"`
	GraceDays    int          `gorm:"column:grace_days;not null;default:0"`
	CreatedAt    time.Time    `gorm:"not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

func (ProductVariant) TableName() string { return "product_variant" }
