// Package domain contains the license ledger of a tenant store: the
// immutable detail record, the mutable status snapshot, the append-only
// transaction log, and per-license add-on balances. The status row is a
// materialized view of the transaction log; every status mutation must be
// paired with a transaction row.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType is the closed set of ledger event types.
type TransactionType string

const (
	TranGenerate          TransactionType = "GENERATE"
	TranSeatChange        TransactionType = "SEAT_CHANGE"
	TranValidityExtension TransactionType = "VALIDITY_EXTENSION"
	TranDealerChange      TransactionType = "DEALER_CHANGE"
	TranAddonPurchase     TransactionType = "ADDON_PURCHASE"
	TranAddonConsume      TransactionType = "ADDON_CONSUME"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TranGenerate, TranSeatChange, TranValidityExtension, TranDealerChange, TranAddonPurchase, TranAddonConsume:
		return true
	}
	return false
}

// LicenseDetail is the immutable identity of a license.
type LicenseDetail struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	LicenseNo   string       `gorm:"column:license_no;type:text;not null;uniqueIndex:ux_license_no"`
	ProductID   snowflake.ID `gorm:"column:product_id;not null;index"`
	VariantID   snowflake.ID `gorm:"column:variant_id;not null"`
	HolderName  string       `gorm:"column:holder_name;type:text;not null"`
	HolderEmail string       `gorm:"column:holder_email;type:text"`
	HolderPhone string       `gorm:"column:holder_phone;type:text"`
	CreatedBy   snowflake.ID `gorm:"column:created_by;not null"`
	CreatedAt   time.Time    `gorm:"not null;index"`
}

func (LicenseDetail) TableName() string { return "license_detail" }

// LicenseStatus is the current snapshot for one license. ExpiresAt includes
// the grace window; ExpiresNoGraceAt is the nominal expiry.
type LicenseStatus struct {
	LicenseID        snowflake.ID `gorm:"column:license_id;primaryKey"`
	SeatCount        int          `gorm:"column:seat_count;not null"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null"`
	ExpiresNoGraceAt time.Time    `gorm:"column:expires_no_grace_at;not null"`
	DealerID         snowflake.ID `gorm:"column:dealer_id;not null;default:0;index"`
	UpdatedAt        time.Time    `gorm:"not null"`
}

func (LicenseStatus) TableName() string { return "license_status" }

// LicenseTransaction is one immutable ledger row. Old/new pairs cover every
// field a modification can touch, so replaying the log in creation order
// reconstructs the status snapshot exactly.
type LicenseTransaction struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	LicenseID snowflake.ID    `gorm:"column:license_id;not null;index"`
	Type      TransactionType `gorm:"type:text;not null"`

	OldSeatCount int `gorm:"column:old_seat_count;not null;default:0"`
	NewSeatCount int `gorm:"column:new_seat_count;not null;default:0"`

	Months int `gorm:"column:months;not null;default:0"`

	OldExpiresAt        time.Time `gorm:"column:old_expires_at"`
	NewExpiresAt        time.Time `gorm:"column:new_expires_at"`
	OldExpiresNoGraceAt time.Time `gorm:"column:old_expires_no_grace_at"`
	NewExpiresNoGraceAt time.Time `gorm:"column:new_expires_no_grace_at"`

	OldDealerID snowflake.ID `gorm:"column:old_dealer_id;not null;default:0"`
	NewDealerID snowflake.ID `gorm:"column:new_dealer_id;not null;default:0"`

	AddonType       string `gorm:"column:addon_type;type:text"`
	OldAddonBalance int    `gorm:"column:old_addon_balance;not null;default:0"`
	NewAddonBalance int    `gorm:"column:new_addon_balance;not null;default:0"`

	Scheme      string `gorm:"column:scheme;type:text"`
	PaymentRef  string `gorm:"column:payment_ref;type:text"`
	AmountCents int64  `gorm:"column:amount_cents;not null;default:0"`

	CreatedBy snowflake.ID `gorm:"column:created_by;not null"`
	CreatedAt time.Time    `gorm:"not null;index"`
}

func (LicenseTransaction) TableName() string { return "license_tran" }

// Apply folds one transaction into a status snapshot.
func (t LicenseTransaction) Apply(status *LicenseStatus) {
	status.LicenseID = t.LicenseID
	switch t.Type {
	case TranGenerate:
		status.SeatCount = t.NewSeatCount
		status.ExpiresAt = t.NewExpiresAt
		status.ExpiresNoGraceAt = t.NewExpiresNoGraceAt
		status.DealerID = t.NewDealerID
	case TranSeatChange:
		status.SeatCount = t.NewSeatCount
	case TranValidityExtension:
		status.ExpiresAt = t.NewExpiresAt
		status.ExpiresNoGraceAt = t.NewExpiresNoGraceAt
	case TranDealerChange:
		status.DealerID = t.NewDealerID
	case TranAddonPurchase, TranAddonConsume:
		// Add-on balances live in addon_status; the status row is
		// untouched, so its UpdatedAt must not move either.
		return
	}
	status.UpdatedAt = t.CreatedAt
}

// AddonStatus is the running consumable balance of one add-on type for one
// license. Every change is also ledgered as a license transaction.
type AddonStatus struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	LicenseID snowflake.ID `gorm:"column:license_id;not null;uniqueIndex:ux_addon_status_license_type,priority:1"`
	AddonType string       `gorm:"column:addon_type;type:text;not null;uniqueIndex:ux_addon_status_license_type,priority:2"`
	Balance   int          `gorm:"column:balance;not null;default:0"`
	UpdatedAt time.Time    `gorm:"not null"`
}

func (AddonStatus) TableName() string { return "addon_status" }
