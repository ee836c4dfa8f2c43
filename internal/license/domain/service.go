package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// GenerateRequest issues a new license for a product variant. SeatCount
// zero means "take the variant's seat count". DealerID zero means a direct
// issuance; otherwise the dealer's credit is drawn down by CreditCents.
type GenerateRequest struct {
	ProductID   snowflake.ID
	VariantID   snowflake.ID
	HolderName  string
	HolderEmail string
	HolderPhone string
	SeatCount   int
	DealerID    snowflake.ID
	CreditCents int64
	Scheme      string
	PaymentRef  string
	AmountCents int64
	ActorID     snowflake.ID
}

// Issued is the result of a successful generation.
type Issued struct {
	Detail LicenseDetail
	Status LicenseStatus
}

// ModifyRequest carries the shared fields of a status modification.
type ModifyRequest struct {
	LicenseNo   string
	Scheme      string
	PaymentRef  string
	AmountCents int64
	ActorID     snowflake.ID
}

// Validation is the outcome of checking a license's validity window.
type Validation struct {
	LicenseNo        string    `json:"license_no"`
	Valid            bool      `json:"valid"`
	InGrace          bool      `json:"in_grace"`
	SeatCount        int       `json:"seat_count"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresNoGraceAt time.Time `json:"expires_no_grace_at"`
}

// Service is the license ledger. Every operation runs against the tenant
// store connection passed by the caller.
type Service interface {
	Generate(ctx context.Context, conn *gorm.DB, req GenerateRequest) (*Issued, error)
	ChangeSeats(ctx context.Context, conn *gorm.DB, req ModifyRequest, newSeatCount int) (*LicenseStatus, error)
	ExtendValidity(ctx context.Context, conn *gorm.DB, req ModifyRequest, months int) (*LicenseStatus, error)
	ReassignDealer(ctx context.Context, conn *gorm.DB, req ModifyRequest, newDealerID snowflake.ID) (*LicenseStatus, error)
	PurchaseAddon(ctx context.Context, conn *gorm.DB, req ModifyRequest, addonType string, value int) (*AddonStatus, error)
	ConsumeAddon(ctx context.Context, conn *gorm.DB, req ModifyRequest, addonType string, value int) (*AddonStatus, error)
	Validate(ctx context.Context, conn *gorm.DB, licenseNo string) (*Validation, error)
	Replay(ctx context.Context, conn *gorm.DB, licenseID snowflake.ID) (*LicenseStatus, error)
}
