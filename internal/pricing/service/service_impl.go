package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licentia/internal/pricing/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"github.com/smallbiznis/licentia/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(log *zap.Logger, genID *snowflake.Node) domain.Service {
	return &service{
		log:   log.Named("pricing.service"),
		genID: genID,
	}
}

// tierPtr ties a tier pointer type to its value type so the generic helpers
// can allocate models for gorm.
type tierPtr[V any] interface {
	*V
	domain.TierRow
}

func (s *service) ResolveVariantPricing(ctx context.Context, conn *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (domain.Resolution[*domain.VariantPricing], error) {
	return resolve[domain.VariantPricing, *domain.VariantPricing](ctx, conn, productID, variantID, asOf)
}

func (s *service) ResolveAddonPlans(ctx context.Context, conn *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (domain.Resolution[*domain.AddonPlan], error) {
	return resolve[domain.AddonPlan, *domain.AddonPlan](ctx, conn, productID, variantID, asOf)
}

func (s *service) ResolveUserDiscountSlabs(ctx context.Context, conn *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (domain.Resolution[*domain.UserDiscountSlab], error) {
	return resolve[domain.UserDiscountSlab, *domain.UserDiscountSlab](ctx, conn, productID, variantID, asOf)
}

func (s *service) ResolveValidityDiscountSlabs(ctx context.Context, conn *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (domain.Resolution[*domain.ValidityDiscountSlab], error) {
	return resolve[domain.ValidityDiscountSlab, *domain.ValidityDiscountSlab](ctx, conn, productID, variantID, asOf)
}

// SavePricing reconciles all four tier kinds inside one shared transaction.
func (s *service) SavePricing(ctx context.Context, conn *gorm.DB, set domain.PricingSet) error {
	if set.ProductID == 0 {
		return apperr.Validation("product is required")
	}
	if set.VariantID == 0 {
		return apperr.Validation("product variant is required")
	}

	err := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := reconcile(ctx, tx, s.genID, set.ProductID, set.VariantID, set.VariantPricing); err != nil {
			return err
		}
		if err := reconcile(ctx, tx, s.genID, set.ProductID, set.VariantID, set.AddonPlans); err != nil {
			return err
		}
		if err := reconcile(ctx, tx, s.genID, set.ProductID, set.VariantID, set.UserDiscountSlabs); err != nil {
			return err
		}
		return reconcile(ctx, tx, s.genID, set.ProductID, set.VariantID, set.ValidityDiscountSlabs)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return apperr.Conflict("a tier with the same effective date already exists")
		}
		if apperr.KindOf(err) != apperr.KindUnknown {
			return err
		}
		s.log.Error("pricing reconciliation failed",
			zap.String("product_id", set.ProductID.String()),
			zap.String("variant_id", set.VariantID.String()),
			zap.Error(err),
		)
		return apperr.Persistence("failed to save pricing", err)
	}
	return nil
}

func resolve[V any, T tierPtr[V]](ctx context.Context, conn *gorm.DB, productID, variantID snowflake.ID, asOf time.Time) (domain.Resolution[T], error) {
	var out domain.Resolution[T]
	if productID == 0 || variantID == 0 {
		return out, apperr.Validation("product and variant are required")
	}

	var rows []V
	err := conn.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		Order("effective_from ASC").
		Find(&rows).Error
	if err != nil {
		return out, apperr.Persistence("failed to load pricing tiers", err)
	}

	asOfDay := truncateToDay(asOf)
	for i := range rows {
		row := T(&rows[i])
		from := truncateToDay(row.TierEffectiveFrom())
		switch {
		case from.After(asOfDay):
			out.Scheduled = append(out.Scheduled, row)
		default:
			// Rows arrive ascending, so the last one at or before asOf wins.
			if out.HasActive {
				out.Previous = append(out.Previous, out.Active)
			}
			out.Active = row
			out.HasActive = true
		}
	}

	// History reads newest-first.
	sort.SliceStable(out.Previous, func(i, j int) bool {
		return out.Previous[i].TierEffectiveFrom().After(out.Previous[j].TierEffectiveFrom())
	})

	return out, nil
}

// reconcile makes the stored tier rows for one (product, variant) match the
// desired set: rows whose ids are absent from desired are deleted, rows with
// matching ids are updated, id-less rows are inserted with generated ids
// written back onto the inputs.
func reconcile[V any, T tierPtr[V]](ctx context.Context, tx *gorm.DB, genID *snowflake.Node, productID, variantID snowflake.ID, desired []T) error {
	seen := make(map[time.Time]bool, len(desired))
	for _, row := range desired {
		from := truncateToDay(row.TierEffectiveFrom())
		if from.IsZero() {
			return apperr.Validation("tier effective date is required")
		}
		if seen[from] {
			return apperr.Conflict("a tier with the same effective date already exists")
		}
		seen[from] = true
		row.SetTierScope(productID, variantID)
	}

	var existing []V
	if err := tx.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, variantID).
		Find(&existing).Error; err != nil {
		return err
	}

	keep := make(map[snowflake.ID]bool, len(desired))
	for _, row := range desired {
		if row.TierID() != 0 {
			keep[row.TierID()] = true
		}
	}

	var remove []snowflake.ID
	for i := range existing {
		id := T(&existing[i]).TierID()
		if !keep[id] {
			remove = append(remove, id)
		}
	}
	if len(remove) > 0 {
		if err := tx.WithContext(ctx).Delete(new(V), "id IN ?", remove).Error; err != nil {
			return err
		}
	}

	for _, row := range desired {
		if row.TierID() == 0 {
			row.SetTierID(genID.Generate())
			if err := tx.WithContext(ctx).Create(row).Error; err != nil {
				return err
			}
			continue
		}
		if err := tx.WithContext(ctx).Save(row).Error; err != nil {
			return err
		}
	}

	return nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
