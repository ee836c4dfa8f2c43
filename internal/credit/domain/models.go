// Package domain contains the dealer credit ledger of a tenant store.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CreditTranType is the closed set of credit ledger event types.
type CreditTranType string

const (
	CreditAdd    CreditTranType = "ADD"    // credit assigned to the dealer
	CreditModify CreditTranType = "MODIFY" // credit consumed or adjusted
)

func (t CreditTranType) Valid() bool {
	return t == CreditAdd || t == CreditModify
}

// VoucherPrefix returns the voucher number prefix for this transaction type.
func (t CreditTranType) VoucherPrefix() string {
	if t == CreditAdd {
		return "AC"
	}
	return "CC"
}

// DealerCreditTran is one row of the per-dealer credit ledger. VchNo is
// written in a second statement after the insert, from the row's own id, so
// it is not observable until the surrounding transaction commits.
type DealerCreditTran struct {
	ID          snowflake.ID   `gorm:"primaryKey"`
	DealerID    snowflake.ID   `gorm:"column:dealer_id;not null;index"`
	Type        CreditTranType `gorm:"type:text;not null"`
	AmountCents int64          `gorm:"column:amount_cents;not null"`
	Reason      string         `gorm:"type:text"`
	VchNo       string         `gorm:"column:vch_no;type:text"`
	CreatedBy   snowflake.ID   `gorm:"column:created_by;not null"`
	CreatedAt   time.Time      `gorm:"not null"`
}

func (DealerCreditTran) TableName() string { return "dealer_credit_tran" }

// Signed returns the amount with ADD counting into and MODIFY out of the
// dealer's balance.
func (t DealerCreditTran) Signed() int64 {
	if t.Type == CreditAdd {
		return t.AmountCents
	}
	return -t.AmountCents
}

// Service is the dealer credit ledger. Consume may be called with an open
// transaction so issuance and credit draw-down commit together.
type Service interface {
	Assign(ctx context.Context, conn *gorm.DB, dealerID snowflake.ID, amountCents int64, reason string, actorID snowflake.ID) (*DealerCreditTran, error)
	Consume(ctx context.Context, conn *gorm.DB, dealerID snowflake.ID, amountCents int64, reason string, actorID snowflake.ID) (*DealerCreditTran, error)
	Balance(ctx context.Context, conn *gorm.DB, dealerID snowflake.ID) (int64, error)
}
