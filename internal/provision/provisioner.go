package provision

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/licentia/internal/catalog/domain"
	"github.com/smallbiznis/licentia/internal/clock"
	creditdomain "github.com/smallbiznis/licentia/internal/credit/domain"
	directorydomain "github.com/smallbiznis/licentia/internal/directory/domain"
	licensedomain "github.com/smallbiznis/licentia/internal/license/domain"
	pricingdomain "github.com/smallbiznis/licentia/internal/pricing/domain"
	"github.com/smallbiznis/licentia/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultDepartmentName = "General"

// tenantModels is the fixed table set every tenant database gets.
func tenantModels() []any {
	return []any{
		&directorydomain.RoleRecord{},
		&directorydomain.Department{},
		&directorydomain.Dealer{},
		&directorydomain.Executive{},
		&catalogdomain.Product{},
		&catalogdomain.ProductVariant{},
		&pricingdomain.VariantPricing{},
		&pricingdomain.AddonPlan{},
		&pricingdomain.UserDiscountSlab{},
		&pricingdomain.ValidityDiscountSlab{},
		&licensedomain.LicenseDetail{},
		&licensedomain.LicenseStatus{},
		&licensedomain.LicenseTransaction{},
		&licensedomain.AddonStatus{},
		&creditdomain.DealerCreditTran{},
	}
}

type provisioner struct {
	log   *zap.Logger
	genID *snowflake.Node
	clk   clock.Clock
	ops   DatabaseOps
}

func NewProvisioner(log *zap.Logger, genID *snowflake.Node, clk clock.Clock, ops DatabaseOps) Provisioner {
	return &provisioner{
		log:   log.Named("provision"),
		genID: genID,
		clk:   clk,
		ops:   ops,
	}
}

// Provision builds the tenant database: existence check, CREATE DATABASE,
// table set, seed rows. Any failure after the create triggers a best-effort
// drop so no half-built database survives. The caller is responsible for
// rolling back its own rows (business, membership) on failure; the DDL here
// cannot join the caller's transaction.
func (p *provisioner) Provision(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Name) == "" {
		return apperr.Validation("database name is required")
	}
	if req.RequestingUser == 0 {
		return apperr.Validation("requesting user is required")
	}

	exists, err := p.ops.Exists(ctx, req.Host, req.Port, req.Name)
	if err != nil {
		return err
	}
	if exists {
		return apperr.Conflict("database already exists")
	}

	if err := p.ops.Create(ctx, req.Host, req.Port, req.Name); err != nil {
		return err
	}

	if err := p.build(ctx, req); err != nil {
		if dropErr := p.ops.Drop(ctx, req.Host, req.Port, req.Name); dropErr != nil {
			p.log.Error("could not drop partially provisioned database",
				zap.String("name", req.Name),
				zap.Error(dropErr),
			)
		}
		return err
	}

	p.log.Info("tenant database provisioned",
		zap.String("name", req.Name),
		zap.Int64("requesting_user", int64(req.RequestingUser)),
	)
	return nil
}

func (p *provisioner) build(ctx context.Context, req Request) error {
	conn, err := p.ops.Open(ctx, req.Host, req.Port, req.Name)
	if err != nil {
		return err
	}

	if err := conn.WithContext(ctx).AutoMigrate(tenantModels()...); err != nil {
		return apperr.Persistence("could not create tenant tables", err)
	}

	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return p.seed(tx, req)
	})
}

// seed writes the rows every tenant starts from: the five-role hierarchy in
// fixed order, one default department, and a bootstrap executive binding the
// requesting user as business admin.
func (p *provisioner) seed(tx *gorm.DB, req Request) error {
	now := p.clk.Now()

	for _, role := range directorydomain.SeedRoles(now) {
		if err := tx.Create(&role).Error; err != nil {
			return apperr.Persistence("could not seed roles", err)
		}
	}

	department := directorydomain.Department{
		ID:        p.genID.Generate(),
		Name:      defaultDepartmentName,
		IsDefault: true,
		CreatedAt: now,
	}
	if err := tx.Create(&department).Error; err != nil {
		return apperr.Persistence("could not seed default department", err)
	}

	bootstrap := directorydomain.Executive{
		ID:           p.genID.Generate(),
		RoleID:       1,
		DepartmentID: department.ID,
		Name:         req.AdminName,
		Email:        req.AdminEmail,
		MappedUserID: req.RequestingUser,
		CreatedBy:    req.RequestingUser,
		UpdatedBy:    req.RequestingUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Create(&bootstrap).Error; err != nil {
		return apperr.Persistence("could not seed bootstrap executive", err)
	}
	return nil
}

// Drop removes a tenant database, used by tenant deletion.
func (p *provisioner) Drop(ctx context.Context, host, port, name string) error {
	return p.ops.Drop(ctx, host, port, name)
}
