package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licentia/internal/clock"
	"github.com/smallbiznis/licentia/internal/credit/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clk   clock.Clock
}

func NewService(log *zap.Logger, genID *snowflake.Node, clk clock.Clock) domain.Service {
	return &service{
		log:   log.Named("credit.service"),
		genID: genID,
		clk:   clk,
	}
}

func (s *service) Assign(ctx context.Context, conn *gorm.DB, dealerID snowflake.ID, amountCents int64, reason string, actorID snowflake.ID) (*domain.DealerCreditTran, error) {
	return s.write(ctx, conn, domain.CreditAdd, dealerID, amountCents, reason, actorID)
}

func (s *service) Consume(ctx context.Context, conn *gorm.DB, dealerID snowflake.ID, amountCents int64, reason string, actorID snowflake.ID) (*domain.DealerCreditTran, error) {
	return s.write(ctx, conn, domain.CreditModify, dealerID, amountCents, reason, actorID)
}

func (s *service) Balance(ctx context.Context, conn *gorm.DB, dealerID snowflake.ID) (int64, error) {
	if dealerID == 0 {
		return 0, apperr.Validation("dealer is required")
	}
	var balance int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN type = ? THEN amount_cents ELSE -amount_cents END), 0)
		 FROM dealer_credit_tran WHERE dealer_id = ?`,
		domain.CreditAdd,
		dealerID,
	).Scan(&balance).Error
	if err != nil {
		return 0, apperr.Persistence("failed to read dealer credit balance", err)
	}
	return balance, nil
}

// write appends one ledger row. The voucher number is set by a second
// statement after the insert, derived from the row's id; readers inside the
// same transaction may observe an empty vch_no until then.
func (s *service) write(ctx context.Context, conn *gorm.DB, tranType domain.CreditTranType, dealerID snowflake.ID, amountCents int64, reason string, actorID snowflake.ID) (*domain.DealerCreditTran, error) {
	if dealerID == 0 {
		return nil, apperr.Validation("dealer is required")
	}
	if amountCents <= 0 {
		return nil, apperr.Validation("credit amount must be positive")
	}

	if tranType == domain.CreditModify {
		balance, err := s.Balance(ctx, conn, dealerID)
		if err != nil {
			return nil, err
		}
		if balance < amountCents {
			return nil, apperr.Validation("insufficient dealer credit")
		}
	}

	tran := domain.DealerCreditTran{
		ID:          s.genID.Generate(),
		DealerID:    dealerID,
		Type:        tranType,
		AmountCents: amountCents,
		Reason:      reason,
		CreatedBy:   actorID,
		CreatedAt:   s.clk.Now(),
	}

	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tran).Error; err != nil {
			return err
		}
		tran.VchNo = fmt.Sprintf("%s-%d", tranType.VoucherPrefix(), tran.ID)
		result := tx.Model(&domain.DealerCreditTran{}).
			Where("id = ?", tran.ID).
			Update("vch_no", tran.VchNo)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("voucher update affected no rows for tran %d", tran.ID)
		}
		return nil
	})
	if err != nil {
		s.log.Error("dealer credit write failed",
			zap.String("dealer_id", dealerID.String()),
			zap.String("type", string(tranType)),
			zap.Error(err),
		)
		return nil, apperr.Persistence("failed to record dealer credit transaction", err)
	}

	return &tran, nil
}
