package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/licentia/internal/catalog/domain"
	"github.com/smallbiznis/licentia/internal/clock"
	creditdomain "github.com/smallbiznis/licentia/internal/credit/domain"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/internal/license/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// licenseLockKey is the advisory lock key serializing license issuance per
// tenant store. Count-based numbering is only correct under a single writer;
// see generateLicenseNo.
const licenseLockKey = 0x4C494345 // "LICE"

type service struct {
	log    *zap.Logger
	genID  *snowflake.Node
	clk    clock.Clock
	credit creditdomain.Service

	// mu serializes issuance on dialects without server-side advisory locks
	// (sqlite). Single-process only, which those dialects already imply.
	mu sync.Mutex
}

func NewService(log *zap.Logger, genID *snowflake.Node, clk clock.Clock, credit creditdomain.Service) domain.Service {
	return &service{
		log:    log.Named("license.service"),
		genID:  genID,
		clk:    clk,
		credit: credit,
	}
}

// Generate issues a license in one transaction: serialize issuance, compose
// the license number from today's issue count, insert detail, status and the
// first ledger row. Any failure rolls the whole transaction back and the
// serialization section is always released.
func (s *service) Generate(ctx context.Context, conn *gorm.DB, req domain.GenerateRequest) (*domain.Issued, error) {
	if req.ProductID == 0 {
		return nil, apperr.Validation("product is required")
	}
	if req.VariantID == 0 {
		return nil, apperr.Validation("product variant is required")
	}
	if strings.TrimSpace(req.HolderName) == "" {
		return nil, apperr.Validation("license holder name is required")
	}
	if req.SeatCount < 0 {
		return nil, apperr.Validation("seat count cannot be negative")
	}

	var product catalogdomain.Product
	if err := conn.WithContext(ctx).First(&product, "id = ?", req.ProductID).Error; err != nil {
		return nil, notFoundOr(err, "product not found", "failed to load product")
	}
	var variant catalogdomain.ProductVariant
	if err := conn.WithContext(ctx).First(&variant, "id = ? AND product_id = ?", req.VariantID, req.ProductID).Error; err != nil {
		return nil, notFoundOr(err, "product variant not found", "failed to load product variant")
	}
	if req.DealerID != 0 {
		var dealer directorydomain.Dealer
		if err := conn.WithContext(ctx).First(&dealer, "id = ?", req.DealerID).Error; err != nil {
			return nil, notFoundOr(err, "dealer not found", "failed to load dealer")
		}
	}

	seatCount := req.SeatCount
	if seatCount == 0 {
		seatCount = variant.UserCount
	}

	release := s.acquireLocal(conn)
	defer release()

	var issued *domain.Issued
	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.acquireStoreLock(ctx, tx); err != nil {
			return err
		}
		// On MySQL this release runs before COMMIT: the named lock is
		// session-scoped and the transaction's connection goes back to
		// the pool at commit, so a later release could land on the
		// wrong session. In the release-to-commit window a second
		// issuer can count before the first insert is visible and mint
		// the same number; the unique index on license_no turns that
		// into a failed issuance rather than a duplicate row.
		defer s.releaseStoreLock(ctx, tx)

		now := s.clk.Now()
		licenseNo, err := s.generateLicenseNo(ctx, tx, product, now)
		if err != nil {
			return err
		}

		detail := domain.LicenseDetail{
			ID:          s.genID.Generate(),
			LicenseNo:   licenseNo,
			ProductID:   req.ProductID,
			VariantID:   req.VariantID,
			HolderName:  strings.TrimSpace(req.HolderName),
			HolderEmail: strings.TrimSpace(req.HolderEmail),
			HolderPhone: strings.TrimSpace(req.HolderPhone),
			CreatedBy:   req.ActorID,
			CreatedAt:   now,
		}
		if err := tx.Create(&detail).Error; err != nil {
			return err
		}

		expiresNoGrace := now.AddDate(0, 0, variant.ValidityDays)
		expires := expiresNoGrace.AddDate(0, 0, variant.GraceDays)
		status := domain.LicenseStatus{
			LicenseID:        detail.ID,
			SeatCount:        seatCount,
			ExpiresAt:        expires,
			ExpiresNoGraceAt: expiresNoGrace,
			DealerID:         req.DealerID,
			UpdatedAt:        now,
		}
		if err := tx.Create(&status).Error; err != nil {
			return err
		}

		tran := domain.LicenseTransaction{
			ID:                  s.genID.Generate(),
			LicenseID:           detail.ID,
			Type:                domain.TranGenerate,
			NewSeatCount:        seatCount,
			NewExpiresAt:        expires,
			NewExpiresNoGraceAt: expiresNoGrace,
			NewDealerID:         req.DealerID,
			Scheme:              req.Scheme,
			PaymentRef:          req.PaymentRef,
			AmountCents:         req.AmountCents,
			CreatedBy:           req.ActorID,
			CreatedAt:           now,
		}
		if err := tx.Create(&tran).Error; err != nil {
			return err
		}

		if req.DealerID != 0 && req.CreditCents > 0 {
			if _, err := s.credit.Consume(ctx, tx, req.DealerID, req.CreditCents,
				"license "+licenseNo, req.ActorID); err != nil {
				return err
			}
		}

		issued = &domain.Issued{Detail: detail, Status: status}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return nil, err
		}
		s.log.Error("license generation failed",
			zap.String("product_id", req.ProductID.String()),
			zap.Error(err),
		)
		return nil, apperr.Persistence("failed to generate license", err)
	}

	s.log.Info("license issued",
		zap.String("license_no", issued.Detail.LicenseNo),
		zap.String("product_id", req.ProductID.String()),
	)
	return issued, nil
}

// generateLicenseNo composes prefix + DD + MM + (countToday+1). The caller
// must hold the issuance lock: two concurrent counts would otherwise read
// the same value and mint duplicate numbers.
func (s *service) generateLicenseNo(ctx context.Context, tx *gorm.DB, product catalogdomain.Product, now time.Time) (string, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var countToday int64
	err := tx.WithContext(ctx).
		Model(&domain.LicenseDetail{}).
		Where("product_id = ? AND created_at >= ? AND created_at < ?", product.ID, dayStart, dayEnd).
		Count(&countToday).Error
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s%02d%02d%d", product.LicensePrefix, now.Day(), int(now.Month()), countToday+1), nil
}

// acquireStoreLock takes a server-side exclusive section for issuance.
// Postgres uses a transaction-scoped advisory lock released on commit or
// rollback. MySQL uses a named lock held on the transaction's connection;
// LOCK TABLES would implicitly commit the open transaction, so it cannot
// serve here.
func (s *service) acquireStoreLock(ctx context.Context, tx *gorm.DB) error {
	switch tx.Dialector.Name() {
	case "postgres":
		if err := tx.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", licenseLockKey).Error; err != nil {
			return apperr.Lock("failed to acquire license issuance lock", err)
		}
	case "mysql":
		var got int
		if err := tx.WithContext(ctx).Raw("SELECT GET_LOCK('licentia_license_issue', 10)").Scan(&got).Error; err != nil {
			return apperr.Lock("failed to acquire license issuance lock", err)
		}
		if got != 1 {
			return apperr.Lock("license issuance lock timed out", nil)
		}
	}
	return nil
}

// releaseStoreLock frees the named lock on dialects that need an explicit
// release. Postgres advisory xact locks release themselves with the
// transaction.
func (s *service) releaseStoreLock(ctx context.Context, tx *gorm.DB) {
	if tx.Dialector.Name() == "mysql" {
		if err := tx.WithContext(ctx).Exec("SELECT RELEASE_LOCK('licentia_license_issue')").Error; err != nil {
			s.log.Warn("failed to release license issuance lock", zap.Error(err))
		}
	}
}

// acquireLocal serializes issuance in-process for dialects without a
// server-side lock primitive.
func (s *service) acquireLocal(conn *gorm.DB) func() {
	switch conn.Dialector.Name() {
	case "postgres", "mysql":
		return func() {}
	default:
		s.mu.Lock()
		return s.mu.Unlock
	}
}

func (s *service) ChangeSeats(ctx context.Context, conn *gorm.DB, req domain.ModifyRequest, newSeatCount int) (*domain.LicenseStatus, error) {
	if newSeatCount <= 0 {
		return nil, apperr.Validation("seat count must be positive")
	}
	return s.modify(ctx, conn, req, func(status domain.LicenseStatus, tran *domain.LicenseTransaction) (map[string]any, error) {
		tran.Type = domain.TranSeatChange
		tran.OldSeatCount = status.SeatCount
		tran.NewSeatCount = newSeatCount
		return map[string]any{"seat_count": newSeatCount}, nil
	})
}

func (s *service) ExtendValidity(ctx context.Context, conn *gorm.DB, req domain.ModifyRequest, months int) (*domain.LicenseStatus, error) {
	if months <= 0 {
		return nil, apperr.Validation("extension months must be positive")
	}
	return s.modify(ctx, conn, req, func(status domain.LicenseStatus, tran *domain.LicenseTransaction) (map[string]any, error) {
		newNoGrace := AddMonthsClamped(status.ExpiresNoGraceAt, months)
		graceWindow := status.ExpiresAt.Sub(status.ExpiresNoGraceAt)
		newExpires := newNoGrace.Add(graceWindow)

		tran.Type = domain.TranValidityExtension
		tran.Months = months
		tran.OldExpiresAt = status.ExpiresAt
		tran.NewExpiresAt = newExpires
		tran.OldExpiresNoGraceAt = status.ExpiresNoGraceAt
		tran.NewExpiresNoGraceAt = newNoGrace
		return map[string]any{
			"expires_at":          newExpires,
			"expires_no_grace_at": newNoGrace,
		}, nil
	})
}

func (s *service) ReassignDealer(ctx context.Context, conn *gorm.DB, req domain.ModifyRequest, newDealerID snowflake.ID) (*domain.LicenseStatus, error) {
	if newDealerID != 0 {
		var dealer directorydomain.Dealer
		if err := conn.WithContext(ctx).First(&dealer, "id = ?", newDealerID).Error; err != nil {
			return nil, notFoundOr(err, "dealer not found", "failed to load dealer")
		}
	}
	return s.modify(ctx, conn, req, func(status domain.LicenseStatus, tran *domain.LicenseTransaction) (map[string]any, error) {
		tran.Type = domain.TranDealerChange
		tran.OldDealerID = status.DealerID
		tran.NewDealerID = newDealerID
		return map[string]any{"dealer_id": newDealerID}, nil
	})
}

func (s *service) PurchaseAddon(ctx context.Context, conn *gorm.DB, req domain.ModifyRequest, addonType string, value int) (*domain.AddonStatus, error) {
	if value <= 0 {
		return nil, apperr.Validation("addon value must be positive")
	}
	return s.adjustAddon(ctx, conn, req, domain.TranAddonPurchase, addonType, value)
}

func (s *service) ConsumeAddon(ctx context.Context, conn *gorm.DB, req domain.ModifyRequest, addonType string, value int) (*domain.AddonStatus, error) {
	if value <= 0 {
		return nil, apperr.Validation("addon value must be positive")
	}
	return s.adjustAddon(ctx, conn, req, domain.TranAddonConsume, addonType, -value)
}

func (s *service) Validate(ctx context.Context, conn *gorm.DB, licenseNo string) (*domain.Validation, error) {
	detail, status, err := s.load(ctx, conn, licenseNo)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	return &domain.Validation{
		LicenseNo:        detail.LicenseNo,
		Valid:            now.Before(status.ExpiresAt),
		InGrace:          !now.Before(status.ExpiresNoGraceAt) && now.Before(status.ExpiresAt),
		SeatCount:        status.SeatCount,
		ExpiresAt:        status.ExpiresAt,
		ExpiresNoGraceAt: status.ExpiresNoGraceAt,
	}, nil
}

// Replay folds the transaction log into a fresh status snapshot. The stored
// status row must always equal this fold; any divergence is a bug in a
// write path that mutated status without ledgering.
func (s *service) Replay(ctx context.Context, conn *gorm.DB, licenseID snowflake.ID) (*domain.LicenseStatus, error) {
	var trans []domain.LicenseTransaction
	err := conn.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("created_at ASC, id ASC").
		Find(&trans).Error
	if err != nil {
		return nil, apperr.Persistence("failed to load license transactions", err)
	}
	if len(trans) == 0 {
		return nil, apperr.NotFound("license has no transactions")
	}

	var status domain.LicenseStatus
	for _, tran := range trans {
		tran.Apply(&status)
	}
	return &status, nil
}

// modify runs one ledgered status mutation: append the transaction row, then
// update the status row to the new values. mutate returns the status columns
// to update.
func (s *service) modify(ctx context.Context, conn *gorm.DB, req domain.ModifyRequest, mutate func(status domain.LicenseStatus, tran *domain.LicenseTransaction) (map[string]any, error)) (*domain.LicenseStatus, error) {
	detail, status, err := s.load(ctx, conn, req.LicenseNo)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	tran := domain.LicenseTransaction{
		ID:          s.genID.Generate(),
		LicenseID:   detail.ID,
		Scheme:      req.Scheme,
		PaymentRef:  req.PaymentRef,
		AmountCents: req.AmountCents,
		CreatedBy:   req.ActorID,
		CreatedAt:   now,
	}

	updates, err := mutate(*status, &tran)
	if err != nil {
		return nil, err
	}
	updates["updated_at"] = now

	err = conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tran).Error; err != nil {
			return err
		}
		result := tx.Model(&domain.LicenseStatus{}).
			Where("license_id = ?", detail.ID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return fmt.Errorf("status update affected %d rows for license %s", result.RowsAffected, detail.LicenseNo)
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return nil, err
		}
		s.log.Error("license modification failed",
			zap.String("license_no", detail.LicenseNo),
			zap.String("type", string(tran.Type)),
			zap.Error(err),
		)
		return nil, apperr.Persistence("failed to modify license", err)
	}

	var updated domain.LicenseStatus
	if err := conn.WithContext(ctx).First(&updated, "license_id = ?", detail.ID).Error; err != nil {
		return nil, apperr.Persistence("failed to reload license status", err)
	}
	return &updated, nil
}

// adjustAddon moves the add-on balance by delta and ledgers the change.
func (s *service) adjustAddon(ctx context.Context, conn *gorm.DB, req domain.ModifyRequest, tranType domain.TransactionType, addonType string, delta int) (*domain.AddonStatus, error) {
	addonType = strings.TrimSpace(addonType)
	if addonType == "" {
		return nil, apperr.Validation("addon type is required")
	}

	detail, _, err := s.load(ctx, conn, req.LicenseNo)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	var addon domain.AddonStatus
	err = conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		findErr := tx.First(&addon, "license_id = ? AND addon_type = ?", detail.ID, addonType).Error
		if findErr != nil {
			if !errors.Is(findErr, gorm.ErrRecordNotFound) {
				return findErr
			}
			addon = domain.AddonStatus{
				ID:        s.genID.Generate(),
				LicenseID: detail.ID,
				AddonType: addonType,
				Balance:   0,
				UpdatedAt: now,
			}
			if err := tx.Create(&addon).Error; err != nil {
				return err
			}
		}

		oldBalance := addon.Balance
		newBalance := oldBalance + delta
		if newBalance < 0 {
			return apperr.Validation("insufficient addon balance")
		}

		tran := domain.LicenseTransaction{
			ID:              s.genID.Generate(),
			LicenseID:       detail.ID,
			Type:            tranType,
			AddonType:       addonType,
			OldAddonBalance: oldBalance,
			NewAddonBalance: newBalance,
			Scheme:          req.Scheme,
			PaymentRef:      req.PaymentRef,
			AmountCents:     req.AmountCents,
			CreatedBy:       req.ActorID,
			CreatedAt:       now,
		}
		if err := tx.Create(&tran).Error; err != nil {
			return err
		}

		result := tx.Model(&domain.AddonStatus{}).
			Where("id = ?", addon.ID).
			Updates(map[string]any{"balance": newBalance, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return fmt.Errorf("addon update affected %d rows for license %s", result.RowsAffected, detail.LicenseNo)
		}
		addon.Balance = newBalance
		addon.UpdatedAt = now
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindUnknown {
			return nil, err
		}
		return nil, apperr.Persistence("failed to adjust addon balance", err)
	}

	return &addon, nil
}

func (s *service) load(ctx context.Context, conn *gorm.DB, licenseNo string) (*domain.LicenseDetail, *domain.LicenseStatus, error) {
	licenseNo = strings.TrimSpace(licenseNo)
	if licenseNo == "" {
		return nil, nil, apperr.Validation("license number is required")
	}

	var detail domain.LicenseDetail
	if err := conn.WithContext(ctx).First(&detail, "license_no = ?", licenseNo).Error; err != nil {
		return nil, nil, notFoundOr(err, "license not found", "failed to load license")
	}
	var status domain.LicenseStatus
	if err := conn.WithContext(ctx).First(&status, "license_id = ?", detail.ID).Error; err != nil {
		return nil, nil, notFoundOr(err, "license status not found", "failed to load license status")
	}
	return &detail, &status, nil
}

func notFoundOr(err error, notFoundMsg, persistMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(notFoundMsg)
	}
	return apperr.Persistence(persistMsg, err)
}

// AddMonthsClamped adds months to an expiry date, clamping the day of month
// to the shorter of (original day - 1) or the last day of the target month,
// never below the 1st. An end-of-January expiry extended one month lands on
// the end of February rather than overflowing into March.
func AddMonthsClamped(t time.Time, months int) time.Time {
	t = t.UTC()
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()

	day := t.Day() - 1
	if day > lastDay {
		day = lastDay
	}
	if day < 1 {
		day = 1
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
