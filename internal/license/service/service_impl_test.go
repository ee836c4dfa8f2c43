package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/smallbiznis/licentia/internal/catalog/domain"
	"github.com/smallbiznis/licentia/internal/clock"
	creditdomain "github.com/smallbiznis/licentia/internal/credit/domain"
	creditservice "github.com/smallbiznis/licentia/internal/credit/service"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/internal/license/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type licenseTestEnv struct {
	svc     domain.Service
	credit  creditdomain.Service
	conn    *gorm.DB
	node    *snowflake.Node
	clk     *clock.FakeClock
	product catalogdomain.Product
	variant catalogdomain.ProductVariant
}

func newLicenseTestEnv(t *testing.T) *licenseTestEnv {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, conn.AutoMigrate(
		&catalogdomain.Product{},
		&catalogdomain.ProductVariant{},
		&directorydomain.Dealer{},
		&domain.LicenseDetail{},
		&domain.LicenseStatus{},
		&domain.LicenseTransaction{},
		&domain.AddonStatus{},
		&creditdomain.DealerCreditTran{},
	))

	node, _ := snowflake.NewNode(1)
	clk := clock.NewFakeClock(time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC))
	credit := creditservice.NewService(zap.NewNop(), node, clk)

	env := &licenseTestEnv{
		svc:    NewService(zap.NewNop(), node, clk, credit),
		credit: credit,
		conn:   conn,
		node:   node,
		clk:    clk,
	}

	env.product = catalogdomain.Product{
		ID:            node.Generate(),
		Name:          "Ledgerly POS",
		LicensePrefix: "LP",
		CreatedBy:     node.Generate(),
		CreatedAt:     clk.Now(),
		UpdatedAt:     clk.Now(),
	}
	require.NoError(t, conn.Create(&env.product).Error)

	env.variant = catalogdomain.ProductVariant{
		ID:           node.Generate(),
		ProductID:    env.product.ID,
		Name:         "Standard",
		UserCount:    5,
		ValidityDays: 365,
		GraceDays:    15,
		CreatedAt:    clk.Now(),
		UpdatedAt:    clk.Now(),
	}
	require.NoError(t, conn.Create(&env.variant).Error)

	return env
}

func (e *licenseTestEnv) generate(t *testing.T, holder string) *domain.Issued {
	t.Helper()
	issued, err := e.svc.Generate(context.Background(), e.conn, domain.GenerateRequest{
		ProductID:  e.product.ID,
		VariantID:  e.variant.ID,
		HolderName: holder,
		ActorID:    e.node.Generate(),
	})
	require.NoError(t, err)
	return issued
}

func TestGenerate_NumberFormat(t *testing.T) {
	env := newLicenseTestEnv(t)

	issued := env.generate(t, "Acme Retail")
	// 2024-05-10, first issue of the day.
	assert.Equal(t, "LP10051", issued.Detail.LicenseNo)

	second := env.generate(t, "Globex")
	assert.Equal(t, "LP10052", second.Detail.LicenseNo)
}

func TestLicenseNoUniqueIndex_RejectsDuplicateNumber(t *testing.T) {
	// The schema backstop for the release-to-commit race on dialects
	// whose issuance lock cannot outlive the transaction: a duplicate
	// number must fail the insert, never produce a second row.
	env := newLicenseTestEnv(t)

	issued := env.generate(t, "Acme Retail")
	err := env.conn.Create(&domain.LicenseDetail{
		ID:         env.node.Generate(),
		LicenseNo:  issued.Detail.LicenseNo,
		ProductID:  env.product.ID,
		VariantID:  env.variant.ID,
		HolderName: "Impostor",
		CreatedBy:  env.node.Generate(),
		CreatedAt:  env.clk.Now(),
	}).Error
	require.Error(t, err)

	var count int64
	env.conn.Model(&domain.LicenseDetail{}).
		Where("license_no = ?", issued.Detail.LicenseNo).
		Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestGenerate_ConcurrentNumbersAreUniqueAndGapless(t *testing.T) {
	env := newLicenseTestEnv(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Generate(context.Background(), env.conn, domain.GenerateRequest{
				ProductID:  env.product.ID,
				VariantID:  env.variant.ID,
				HolderName: fmt.Sprintf("Holder %d", i),
				ActorID:    env.node.Generate(),
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "issue %d", i)
	}

	var numbers []string
	require.NoError(t, env.conn.Model(&domain.LicenseDetail{}).
		Where("product_id = ?", env.product.ID).
		Pluck("license_no", &numbers).Error)
	require.Len(t, numbers, n)

	want := make(map[string]bool, n)
	for i := 1; i <= n; i++ {
		want[fmt.Sprintf("LP1005%d", i)] = true
	}
	for _, no := range numbers {
		assert.True(t, want[no], "unexpected license number %s", no)
		delete(want, no)
	}
	assert.Empty(t, want, "missing sequence numbers")
}

func TestGenerate_DealerIssuanceDrawsCredit(t *testing.T) {
	env := newLicenseTestEnv(t)
	ctx := context.Background()

	dealer := directorydomain.Dealer{
		ID:        env.node.Generate(),
		Name:      "North Dealer",
		Email:     "north@example.com",
		CreatedBy: env.node.Generate(),
		CreatedAt: env.clk.Now(),
		UpdatedAt: env.clk.Now(),
	}
	require.NoError(t, env.conn.Create(&dealer).Error)
	_, err := env.credit.Assign(ctx, env.conn, dealer.ID, 10_000, "topup", dealer.CreatedBy)
	require.NoError(t, err)

	_, err = env.svc.Generate(ctx, env.conn, domain.GenerateRequest{
		ProductID:   env.product.ID,
		VariantID:   env.variant.ID,
		HolderName:  "Dealer Customer",
		DealerID:    dealer.ID,
		CreditCents: 4_000,
		ActorID:     env.node.Generate(),
	})
	require.NoError(t, err)

	balance, err := env.credit.Balance(ctx, env.conn, dealer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6_000), balance)
}

func TestGenerate_InsufficientCreditRollsBackIssuance(t *testing.T) {
	env := newLicenseTestEnv(t)
	ctx := context.Background()

	dealer := directorydomain.Dealer{
		ID:        env.node.Generate(),
		Name:      "South Dealer",
		Email:     "south@example.com",
		CreatedBy: env.node.Generate(),
		CreatedAt: env.clk.Now(),
		UpdatedAt: env.clk.Now(),
	}
	require.NoError(t, env.conn.Create(&dealer).Error)

	_, err := env.svc.Generate(ctx, env.conn, domain.GenerateRequest{
		ProductID:   env.product.ID,
		VariantID:   env.variant.ID,
		HolderName:  "Dealer Customer",
		DealerID:    dealer.ID,
		CreditCents: 4_000,
		ActorID:     env.node.Generate(),
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// The whole issuance rolled back with the credit failure.
	var count int64
	env.conn.Model(&domain.LicenseDetail{}).Where("product_id = ?", env.product.ID).Count(&count)
	assert.Zero(t, count)
}

func TestStatusEqualsFoldOfTransactions(t *testing.T) {
	env := newLicenseTestEnv(t)
	ctx := context.Background()

	issued := env.generate(t, "Acme Retail")
	req := domain.ModifyRequest{LicenseNo: issued.Detail.LicenseNo, ActorID: env.node.Generate()}

	dealer := directorydomain.Dealer{
		ID:        env.node.Generate(),
		Name:      "East Dealer",
		Email:     "east@example.com",
		CreatedBy: env.node.Generate(),
		CreatedAt: env.clk.Now(),
		UpdatedAt: env.clk.Now(),
	}
	require.NoError(t, env.conn.Create(&dealer).Error)

	env.clk.Advance(time.Hour)
	_, err := env.svc.ChangeSeats(ctx, env.conn, req, 12)
	require.NoError(t, err)

	env.clk.Advance(time.Hour)
	_, err = env.svc.ExtendValidity(ctx, env.conn, req, 6)
	require.NoError(t, err)

	env.clk.Advance(time.Hour)
	_, err = env.svc.ReassignDealer(ctx, env.conn, req, dealer.ID)
	require.NoError(t, err)

	// Add-on rows are ledgered too but leave the status row alone; the
	// fold must not let them drag UpdatedAt forward.
	env.clk.Advance(time.Hour)
	_, err = env.svc.PurchaseAddon(ctx, env.conn, req, "extra_users", 5)
	require.NoError(t, err)

	env.clk.Advance(time.Hour)
	_, err = env.svc.ConsumeAddon(ctx, env.conn, req, "extra_users", 2)
	require.NoError(t, err)

	var stored domain.LicenseStatus
	require.NoError(t, env.conn.First(&stored, "license_id = ?", issued.Detail.ID).Error)

	replayed, err := env.svc.Replay(ctx, env.conn, issued.Detail.ID)
	require.NoError(t, err)

	assert.Equal(t, stored.SeatCount, replayed.SeatCount)
	assert.True(t, stored.ExpiresAt.Equal(replayed.ExpiresAt))
	assert.True(t, stored.ExpiresNoGraceAt.Equal(replayed.ExpiresNoGraceAt))
	assert.Equal(t, stored.DealerID, replayed.DealerID)
	assert.True(t, stored.UpdatedAt.Equal(replayed.UpdatedAt))
}

func TestAddMonthsClamped_MonthEndDoesNotOverflow(t *testing.T) {
	// Leap-year February: Jan 31 + 1 month clamps to Feb 29, not Mar 2.
	got := AddMonthsClamped(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), got)

	// Mid-month dates land on the prior day of the target month.
	got = AddMonthsClamped(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, time.Date(2024, time.April, 14, 0, 0, 0, 0, time.UTC), got)

	// Year rollovers normalize.
	got = AddMonthsClamped(time.Date(2024, time.November, 30, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), got)
}

func TestAddonPurchaseAndConsume(t *testing.T) {
	env := newLicenseTestEnv(t)
	ctx := context.Background()

	issued := env.generate(t, "Acme Retail")
	req := domain.ModifyRequest{LicenseNo: issued.Detail.LicenseNo, ActorID: env.node.Generate()}

	addon, err := env.svc.PurchaseAddon(ctx, env.conn, req, "extra_users", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, addon.Balance)

	addon, err = env.svc.ConsumeAddon(ctx, env.conn, req, "extra_users", 4)
	require.NoError(t, err)
	assert.Equal(t, 6, addon.Balance)

	_, err = env.svc.ConsumeAddon(ctx, env.conn, req, "extra_users", 7)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Every balance change is ledgered.
	var trans []domain.LicenseTransaction
	require.NoError(t, env.conn.
		Where("license_id = ? AND addon_type = ?", issued.Detail.ID, "extra_users").
		Order("created_at ASC, id ASC").
		Find(&trans).Error)
	require.Len(t, trans, 2)
	assert.Equal(t, domain.TranAddonPurchase, trans[0].Type)
	assert.Equal(t, 0, trans[0].OldAddonBalance)
	assert.Equal(t, 10, trans[0].NewAddonBalance)
	assert.Equal(t, domain.TranAddonConsume, trans[1].Type)
	assert.Equal(t, 10, trans[1].OldAddonBalance)
	assert.Equal(t, 6, trans[1].NewAddonBalance)
}

func TestValidate_GraceWindow(t *testing.T) {
	env := newLicenseTestEnv(t)
	ctx := context.Background()

	issued := env.generate(t, "Acme Retail")

	v, err := env.svc.Validate(ctx, env.conn, issued.Detail.LicenseNo)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.False(t, v.InGrace)

	// Past nominal expiry but inside grace.
	env.clk.Set(issued.Status.ExpiresNoGraceAt.Add(24 * time.Hour))
	v, err = env.svc.Validate(ctx, env.conn, issued.Detail.LicenseNo)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.True(t, v.InGrace)

	// Past grace.
	env.clk.Set(issued.Status.ExpiresAt.Add(time.Hour))
	v, err = env.svc.Validate(ctx, env.conn, issued.Detail.LicenseNo)
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestModify_UnknownLicense(t *testing.T) {
	env := newLicenseTestEnv(t)

	_, err := env.svc.ChangeSeats(context.Background(), env.conn, domain.ModifyRequest{LicenseNo: "XX00001"}, 5)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
