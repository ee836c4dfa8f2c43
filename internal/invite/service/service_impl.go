package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/licentia/internal/clock"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	"github.com/smallbiznis/licentia/internal/identity"
	"github.com/smallbiznis/licentia/internal/invite/domain"
	"github.com/smallbiznis/licentia/internal/notify"
	tenantdomain "github.com/smallbiznis/licentia/internal/tenant/domain"
	"github.com/smallbiznis/licentia/internal/tenantdb"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clk      clock.Clock
	core     *gorm.DB
	registry tenantdb.Registry
	resolver identity.Resolver
	notifier notify.Dispatcher
}

func NewService(
	log *zap.Logger,
	genID *snowflake.Node,
	clk clock.Clock,
	core *gorm.DB,
	registry tenantdb.Registry,
	resolver identity.Resolver,
	notifier notify.Dispatcher,
) domain.Service {
	return &service{
		log:      log.Named("invite.service"),
		genID:    genID,
		clk:      clk,
		core:     core,
		registry: registry,
		resolver: resolver,
		notifier: notifier,
	}
}

// PrepareForSave stamps the bookkeeping fields. A first save (no id yet)
// gets an id, a token, the creator, and is forced to Pending; when the actor
// is a dealer admin the invite inherits the actor's dealer scope. Later
// saves only touch updated_by.
func (s *service) PrepareForSave(ctx context.Context, inv *domain.Invite) error {
	actor, err := s.resolver.CurrentActor(ctx)
	if err != nil {
		return err
	}
	now := s.clk.Now()

	if inv.ID != 0 {
		inv.UpdatedBy = actor.UserID
		inv.UpdatedAt = now
		return nil
	}

	inv.ID = s.genID.Generate()
	inv.Token = uuid.NewString()
	inv.Status = domain.StatusPending
	inv.EntityKind = domain.KindForRole(inv.Role)
	if inv.TenantID == 0 {
		inv.TenantID = actor.TenantID
	}
	if actor.Role == directorydomain.RoleDealerAdmin && inv.DealerID == 0 {
		inv.DealerID = actor.DealerID
	}
	inv.CreatedBy = actor.UserID
	inv.UpdatedBy = actor.UserID
	inv.CreatedAt = now
	inv.UpdatedAt = now
	return nil
}

// Create validates the request, materializes the entity the invite targets
// in the tenant store, records the invite in the core store and fires the
// notification. Entity creation and invite insert commit together through
// the two-store saga.
func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Invite, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	business, err := s.loadBusiness(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	identifier := req.Email
	if identifier == "" {
		identifier = req.Phone
	}
	if err := s.checkDuplicate(ctx, req.TenantID, identifier, domain.KindForRole(req.Role)); err != nil {
		return nil, err
	}
	if req.Email != "" {
		if err := s.checkNotBusinessAdmin(ctx, req.TenantID, req.Email); err != nil {
			return nil, err
		}
	}

	inv := &domain.Invite{
		TenantID: req.TenantID,
		Role:     req.Role,
		Email:    strings.TrimSpace(req.Email),
		Phone:    strings.TrimSpace(req.Phone),
		DealerID: req.DealerID,
	}
	if err := s.PrepareForSave(ctx, inv); err != nil {
		return nil, err
	}
	actor, err := s.resolver.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}

	tenantConn, err := s.registry.Open(business.DBHost, business.DBPort, business.DBName)
	if err != nil {
		return nil, err
	}

	err = runTwoStore(s.log, tenantConn, s.core.WithContext(ctx), func(tenantTx, coreTx *gorm.DB) error {
		if err := s.createEntity(tenantTx, actor, req, inv); err != nil {
			return err
		}
		if err := coreTx.Create(inv).Error; err != nil {
			return apperr.Persistence("could not record invite", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.InviteCreated(ctx, inv.Email, inv.Phone, business.Name)

	s.log.Info("invite created",
		zap.Int64("invite_id", int64(inv.ID)),
		zap.Int64("tenant_id", int64(inv.TenantID)),
		zap.String("role", string(inv.Role)),
	)
	return inv, nil
}

// createEntity writes the tenant-store record the invite will bind on
// acceptance. Dealer admins get a fresh dealer plus its admin executive row;
// executive invites get an executive row keyed back to the invite.
func (s *service) createEntity(tenantTx *gorm.DB, actor identity.Actor, req domain.CreateRequest, inv *domain.Invite) error {
	now := s.clk.Now()

	switch inv.EntityKind {
	case domain.EntityDealer:
		dealer := directorydomain.Dealer{
			ID:        s.genID.Generate(),
			Name:      req.Name,
			Email:     inv.Email,
			Phone:     inv.Phone,
			CreatedBy: actor.UserID,
			UpdatedBy: actor.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tenantTx.Create(&dealer).Error; err != nil {
			return apperr.Persistence("could not create dealer", err)
		}
		admin := directorydomain.Executive{
			ID:        s.genID.Generate(),
			DealerID:  dealer.ID,
			RoleID:    1,
			Name:      req.Name,
			Email:     inv.Email,
			Phone:     inv.Phone,
			InviteID:  inv.ID,
			CreatedBy: actor.UserID,
			UpdatedBy: actor.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tenantTx.Create(&admin).Error; err != nil {
			return apperr.Persistence("could not create dealer admin executive", err)
		}
		inv.DealerID = dealer.ID
		inv.ExecutiveID = admin.ID
		return nil

	case domain.EntityExecutive:
		roleID := int64(2)
		if inv.Role == directorydomain.RoleDealerExecutive {
			roleID = 4
			var dealer directorydomain.Dealer
			if err := tenantTx.First(&dealer, "id = ?", inv.DealerID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperr.NotFound("dealer not found")
				}
				return apperr.Persistence("could not load dealer", err)
			}
		}
		exec := directorydomain.Executive{
			ID:        s.genID.Generate(),
			DealerID:  inv.DealerID,
			RoleID:    roleID,
			Name:      req.Name,
			Email:     inv.Email,
			Phone:     inv.Phone,
			InviteID:  inv.ID,
			CreatedBy: actor.UserID,
			UpdatedBy: actor.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tenantTx.Create(&exec).Error; err != nil {
			return apperr.Persistence("could not create executive", err)
		}
		inv.ExecutiveID = exec.ID
		return nil
	}
	return apperr.Validation("unknown invite entity kind")
}

// Accept moves a pending invite to Accepted and wires the caller into the
// tenant: mapped_user_id on the bound entity (the dealer plus its admin
// executive for dealer-admin invites), then an Active membership row. Entity
// binding and membership insert both run before either store commits.
func (s *service) Accept(ctx context.Context, token string) (*domain.Invite, error) {
	actor, err := s.resolver.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}

	inv, err := s.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(inv.Status, domain.StatusAccepted); err != nil {
		return nil, err
	}

	business, err := s.loadBusiness(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}
	tenantConn, err := s.registry.Open(business.DBHost, business.DBPort, business.DBName)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	err = runTwoStore(s.log, tenantConn, s.core.WithContext(ctx), func(tenantTx, coreTx *gorm.DB) error {
		if err := s.bindUser(tenantTx, inv, actor.UserID, now); err != nil {
			return err
		}

		res := coreTx.Model(&domain.Invite{}).
			Where("id = ? AND status = ?", inv.ID, inv.Status).
			Updates(map[string]any{
				"status":     domain.StatusAccepted,
				"updated_by": actor.UserID,
				"updated_at": now,
			})
		if res.Error != nil {
			return apperr.Persistence("could not update invite", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.Conflict("invite was changed concurrently")
		}

		membership := tenantdomain.TenantMembership{
			ID:        s.genID.Generate(),
			UserID:    actor.UserID,
			TenantID:  inv.TenantID,
			Role:      inv.Role,
			Status:    tenantdomain.MembershipActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := coreTx.Create(&membership).Error; err != nil {
			return apperr.Persistence("could not create tenant membership", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Status = domain.StatusAccepted
	inv.UpdatedBy = actor.UserID
	inv.UpdatedAt = now

	s.log.Info("invite accepted",
		zap.Int64("invite_id", int64(inv.ID)),
		zap.Int64("user_id", int64(actor.UserID)),
	)
	return inv, nil
}

func (s *service) bindUser(tenantTx *gorm.DB, inv *domain.Invite, userID snowflake.ID, now time.Time) error {
	switch inv.EntityKind {
	case domain.EntityDealer:
		res := tenantTx.Model(&directorydomain.Dealer{}).
			Where("id = ?", inv.DealerID).
			Updates(map[string]any{"mapped_user_id": userID, "updated_at": now})
		if res.Error != nil {
			return apperr.Persistence("could not bind dealer", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.NotFound("dealer not found")
		}
		// The dealer's seeded admin executive follows the dealer binding.
		if err := tenantTx.Model(&directorydomain.Executive{}).
			Where("dealer_id = ? AND role_id = ?", inv.DealerID, 1).
			Updates(map[string]any{"mapped_user_id": userID, "updated_at": now}).Error; err != nil {
			return apperr.Persistence("could not bind dealer admin executive", err)
		}
		return nil

	case domain.EntityExecutive:
		res := tenantTx.Model(&directorydomain.Executive{}).
			Where("invite_id = ?", inv.ID).
			Updates(map[string]any{"mapped_user_id": userID, "updated_at": now})
		if res.Error != nil {
			return apperr.Persistence("could not bind executive", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.NotFound("executive not found")
		}
		return nil
	}
	return apperr.Validation("unknown invite entity kind")
}

// Reject closes a pending invite. Core store only; nothing in the tenant
// store was bound yet.
func (s *service) Reject(ctx context.Context, token string) (*domain.Invite, error) {
	inv, err := s.loadByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.close(ctx, inv, domain.StatusRejected)
}

// Cancel withdraws a pending invite from the business side.
func (s *service) Cancel(ctx context.Context, inviteID snowflake.ID) (*domain.Invite, error) {
	var inv domain.Invite
	if err := s.core.WithContext(ctx).First(&inv, "id = ?", inviteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invite not found")
		}
		return nil, apperr.Persistence("could not load invite", err)
	}
	return s.close(ctx, &inv, domain.StatusCancelled)
}

func (s *service) close(ctx context.Context, inv *domain.Invite, to domain.Status) (*domain.Invite, error) {
	actor, err := s.resolver.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(inv.Status, to); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	res := s.core.WithContext(ctx).Model(&domain.Invite{}).
		Where("id = ? AND status = ?", inv.ID, inv.Status).
		Updates(map[string]any{
			"status":     to,
			"updated_by": actor.UserID,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, apperr.Persistence("could not update invite", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, apperr.Conflict("invite was changed concurrently")
	}

	inv.Status = to
	inv.UpdatedBy = actor.UserID
	inv.UpdatedAt = now
	return inv, nil
}

// Deregister unwinds an accepted invite: status to Deregistered, the bound
// entity's mapped_user_id cleared (dealer plus its admin executive for
// dealer invites), and the membership row removed. The identifier may be the
// invite's email or phone.
func (s *service) Deregister(ctx context.Context, tenantID snowflake.ID, identifier string) (*domain.Invite, error) {
	actor, err := s.resolver.CurrentActor(ctx)
	if err != nil {
		return nil, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, apperr.Validation("identifier is required")
	}

	var inv domain.Invite
	err = s.core.WithContext(ctx).
		Where("tenant_id = ? AND (email = ? OR phone = ?)", tenantID, identifier, identifier).
		Where("status = ?", domain.StatusAccepted).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("no accepted invite for this identifier")
		}
		return nil, apperr.Persistence("could not load invite", err)
	}
	if err := checkTransition(inv.Status, domain.StatusDeregistered); err != nil {
		return nil, err
	}

	business, err := s.loadBusiness(ctx, inv.TenantID)
	if err != nil {
		return nil, err
	}
	tenantConn, err := s.registry.Open(business.DBHost, business.DBPort, business.DBName)
	if err != nil {
		return nil, err
	}

	// The bound user id lives on the tenant-store entity; read it before
	// clearing so the membership delete targets the right user.
	boundUserID, err := s.boundUser(tenantConn, &inv)
	if err != nil {
		return nil, err
	}

	now := s.clk.Now()
	err = runTwoStore(s.log, tenantConn, s.core.WithContext(ctx), func(tenantTx, coreTx *gorm.DB) error {
		if err := s.unbindUser(tenantTx, &inv, now); err != nil {
			return err
		}

		res := coreTx.Model(&domain.Invite{}).
			Where("id = ? AND status = ?", inv.ID, domain.StatusAccepted).
			Updates(map[string]any{
				"status":     domain.StatusDeregistered,
				"updated_by": actor.UserID,
				"updated_at": now,
			})
		if res.Error != nil {
			return apperr.Persistence("could not update invite", res.Error)
		}
		if res.RowsAffected != 1 {
			return apperr.Conflict("invite was changed concurrently")
		}

		if err := coreTx.
			Where("user_id = ? AND tenant_id = ?", boundUserID, inv.TenantID).
			Delete(&tenantdomain.TenantMembership{}).Error; err != nil {
			return apperr.Persistence("could not remove tenant membership", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Status = domain.StatusDeregistered
	inv.UpdatedBy = actor.UserID
	inv.UpdatedAt = now

	s.log.Info("invite deregistered",
		zap.Int64("invite_id", int64(inv.ID)),
		zap.Int64("user_id", int64(boundUserID)),
	)
	return &inv, nil
}

func (s *service) boundUser(tenantConn *gorm.DB, inv *domain.Invite) (snowflake.ID, error) {
	switch inv.EntityKind {
	case domain.EntityDealer:
		var dealer directorydomain.Dealer
		if err := tenantConn.First(&dealer, "id = ?", inv.DealerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, apperr.NotFound("dealer not found")
			}
			return 0, apperr.Persistence("could not load dealer", err)
		}
		return dealer.MappedUserID, nil
	default:
		var exec directorydomain.Executive
		if err := tenantConn.First(&exec, "invite_id = ?", inv.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, apperr.NotFound("executive not found")
			}
			return 0, apperr.Persistence("could not load executive", err)
		}
		return exec.MappedUserID, nil
	}
}

func (s *service) unbindUser(tenantTx *gorm.DB, inv *domain.Invite, now time.Time) error {
	switch inv.EntityKind {
	case domain.EntityDealer:
		if err := tenantTx.Model(&directorydomain.Dealer{}).
			Where("id = ?", inv.DealerID).
			Updates(map[string]any{"mapped_user_id": 0, "updated_at": now}).Error; err != nil {
			return apperr.Persistence("could not unbind dealer", err)
		}
		if err := tenantTx.Model(&directorydomain.Executive{}).
			Where("dealer_id = ? AND role_id = ?", inv.DealerID, 1).
			Updates(map[string]any{"mapped_user_id": 0, "updated_at": now}).Error; err != nil {
			return apperr.Persistence("could not unbind dealer admin executive", err)
		}
		return nil
	default:
		if err := tenantTx.Model(&directorydomain.Executive{}).
			Where("invite_id = ?", inv.ID).
			Updates(map[string]any{"mapped_user_id": 0, "updated_at": now}).Error; err != nil {
			return apperr.Persistence("could not unbind executive", err)
		}
		return nil
	}
}

func (s *service) loadByToken(ctx context.Context, token string) (*domain.Invite, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperr.Validation("invite token is required")
	}
	var inv domain.Invite
	if err := s.core.WithContext(ctx).First(&inv, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("invite not found")
		}
		return nil, apperr.Persistence("could not load invite", err)
	}
	return &inv, nil
}

func (s *service) loadBusiness(ctx context.Context, tenantID snowflake.ID) (*tenantdomain.Business, error) {
	var business tenantdomain.Business
	if err := s.core.WithContext(ctx).First(&business, "id = ?", tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("business not found")
		}
		return nil, apperr.Persistence("could not load business", err)
	}
	return &business, nil
}

// checkDuplicate enforces the one-active-invite rule per (tenant,
// identifier, entity kind).
func (s *service) checkDuplicate(ctx context.Context, tenantID snowflake.ID, identifier string, kind domain.EntityKind) error {
	var count int64
	err := s.core.WithContext(ctx).Model(&domain.Invite{}).
		Where("tenant_id = ? AND entity_kind = ?", tenantID, kind).
		Where("email = ? OR phone = ?", identifier, identifier).
		Where("status IN ?", []domain.Status{domain.StatusPending, domain.StatusAccepted}).
		Count(&count).Error
	if err != nil {
		return apperr.Persistence("could not check existing invites", err)
	}
	if count > 0 {
		return apperr.Conflict("an active invite already exists for this contact")
	}
	return nil
}

// checkNotBusinessAdmin rejects inviting a contact who already holds the
// business admin membership of this tenant.
func (s *service) checkNotBusinessAdmin(ctx context.Context, tenantID snowflake.ID, email string) error {
	var user tenantdomain.User
	err := s.core.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.Persistence("could not look up user", err)
	}

	var count int64
	err = s.core.WithContext(ctx).Model(&tenantdomain.TenantMembership{}).
		Where("user_id = ? AND tenant_id = ? AND role = ?", user.ID, tenantID, directorydomain.RoleBusinessAdmin).
		Count(&count).Error
	if err != nil {
		return apperr.Persistence("could not check memberships", err)
	}
	if count > 0 {
		return apperr.Conflict("contact is already the business admin of this tenant")
	}
	return nil
}

func validateCreate(req domain.CreateRequest) error {
	if req.TenantID == 0 {
		return apperr.Validation("tenant is required")
	}
	switch req.Role {
	case directorydomain.RoleDealerAdmin, directorydomain.RoleDealerExecutive, directorydomain.RoleBusinessExecutive:
	default:
		return apperr.Validation("role is not invitable")
	}
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.Phone) == "" {
		return apperr.Validation("email or phone is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperr.Validation("name is required")
	}
	if req.Role == directorydomain.RoleDealerExecutive && req.DealerID == 0 {
		return apperr.Validation("dealer is required for dealer executive invites")
	}
	return nil
}

func checkTransition(from, to domain.Status) error {
	if from.Terminal() {
		return apperr.Conflict("invite is already closed")
	}
	if !from.CanTransition(to) {
		return apperr.Conflict("invite cannot move to " + string(to))
	}
	return nil
}
