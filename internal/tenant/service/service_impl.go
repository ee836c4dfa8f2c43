package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/licentia/internal/clock"
	"github.com/smallbiznis/licentia/internal/config"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/internal/identity"
	invitedomain "github.com/smallbiznis/licentia/internal/invite/domain"
	"github.com/smallbiznis/licentia/internal/provision"
	"github.com/smallbiznis/licentia/internal/tenant/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	log         *zap.Logger
	genID       *snowflake.Node
	clk         clock.Clock
	cfg         config.Config
	core        *gorm.DB
	resolver    identity.Resolver
	provisioner provision.Provisioner
}

func NewService(
	log *zap.Logger,
	genID *snowflake.Node,
	clk clock.Clock,
	cfg config.Config,
	core *gorm.DB,
	resolver identity.Resolver,
	provisioner provision.Provisioner,
) domain.Service {
	return &service{
		log:         log.Named("tenant.service"),
		genID:       genID,
		clk:         clk,
		cfg:         cfg,
		core:        core,
		resolver:    resolver,
		provisioner: provisioner,
	}
}

// Create onboards a business: business row, owner membership and the tenant
// database, all in one flow. The database DDL runs mid-transaction and
// cannot be rolled back by it; on provisioning failure the provisioner drops
// its own database while the transaction rolls back the core rows.
func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Business, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("business name is required")
	}

	actor, err := s.resolver.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	business := &domain.Business{
		ID:        s.genID.Generate(),
		Name:      name,
		DBHost:    s.cfg.TenantDBHost,
		DBPort:    s.cfg.TenantDBPort,
		DBName:    slug.Make(name),
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.core.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(business).Error; err != nil {
			return apperr.Persistence("could not create business", err)
		}

		membership := domain.TenantMembership{
			ID:        s.genID.Generate(),
			UserID:    actor.UserID,
			TenantID:  business.ID,
			Role:      directorydomain.RoleBusinessAdmin,
			Status:    domain.MembershipActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return apperr.Persistence("could not create owner membership", err)
		}

		return s.provisioner.Provision(ctx, provision.Request{
			Name:           business.DBName,
			Host:           business.DBHost,
			Port:           business.DBPort,
			RequestingUser: actor.UserID,
			AdminName:      actor.Email,
			AdminEmail:     actor.Email,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("business created",
		zap.Int64("business_id", int64(business.ID)),
		zap.String("db_name", business.DBName),
	)
	return business, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.Business, error) {
	var business domain.Business
	if err := s.core.WithContext(ctx).First(&business, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("business not found")
		}
		return nil, apperr.Persistence("could not load business", err)
	}
	return &business, nil
}

func (s *service) List(ctx context.Context) ([]domain.Business, error) {
	var businesses []domain.Business
	if err := s.core.WithContext(ctx).Order("created_at").Find(&businesses).Error; err != nil {
		return nil, apperr.Persistence("could not list businesses", err)
	}
	return businesses, nil
}

// Delete removes the business with its memberships and invites, then drops
// the tenant database best effort. A database left behind after a failed
// drop is orphaned, not dangling: nothing references it once the core rows
// are gone.
func (s *service) Delete(ctx context.Context, id snowflake.ID) error {
	business, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.core.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", id).Delete(&invitedomain.Invite{}).Error; err != nil {
			return apperr.Persistence("could not delete invites", err)
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&domain.TenantMembership{}).Error; err != nil {
			return apperr.Persistence("could not delete memberships", err)
		}
		if err := tx.Delete(&domain.Business{}, "id = ?", id).Error; err != nil {
			return apperr.Persistence("could not delete business", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.provisioner.Drop(ctx, business.DBHost, business.DBPort, business.DBName); err != nil {
		s.log.Warn("could not drop tenant database",
			zap.String("db_name", business.DBName),
			zap.Error(err),
		)
	}

	s.log.Info("business deleted", zap.Int64("business_id", int64(id)))
	return nil
}
