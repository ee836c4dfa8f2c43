package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/licentia/internal/clock"
	"github.com/smallbiznis/licentia/internal/credit/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newCreditTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&domain.DealerCreditTran{}))

	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC))
	return NewService(zap.NewNop(), node, clk), conn
}

func TestAssign_VoucherNumberFromGeneratedID(t *testing.T) {
	svc, conn := newCreditTestService(t)
	node, _ := snowflake.NewNode(2)
	dealerID := node.Generate()
	actorID := node.Generate()

	tran, err := svc.Assign(context.Background(), conn, dealerID, 50_000, "initial credit", actorID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("AC-%d", tran.ID), tran.VchNo)

	var stored domain.DealerCreditTran
	require.NoError(t, conn.First(&stored, "id = ?", tran.ID).Error)
	assert.Equal(t, tran.VchNo, stored.VchNo)
	assert.Equal(t, domain.CreditAdd, stored.Type)
}

func TestConsume_VoucherPrefixAndBalance(t *testing.T) {
	svc, conn := newCreditTestService(t)
	node, _ := snowflake.NewNode(2)
	dealerID := node.Generate()
	actorID := node.Generate()

	_, err := svc.Assign(context.Background(), conn, dealerID, 10_000, "topup", actorID)
	require.NoError(t, err)

	tran, err := svc.Consume(context.Background(), conn, dealerID, 4_000, "license issue", actorID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("CC-%d", tran.ID), tran.VchNo)

	balance, err := svc.Balance(context.Background(), conn, dealerID)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), balance)
}

func TestConsume_InsufficientCredit(t *testing.T) {
	svc, conn := newCreditTestService(t)
	node, _ := snowflake.NewNode(2)
	dealerID := node.Generate()
	actorID := node.Generate()

	_, err := svc.Assign(context.Background(), conn, dealerID, 1_000, "topup", actorID)
	require.NoError(t, err)

	_, err = svc.Consume(context.Background(), conn, dealerID, 2_000, "license issue", actorID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// The rejected draw-down must not leave a ledger row behind.
	var count int64
	conn.Model(&domain.DealerCreditTran{}).Where("dealer_id = ? AND type = ?", dealerID, domain.CreditModify).Count(&count)
	assert.Zero(t, count)
}
