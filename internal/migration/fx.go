package migration

import (
	"github.com/smallbiznis/licentia/internal/config"
	invitedomain "github.com/smallbiznis/licentia/internal/invite/domain"
	"github.com/smallbiznis/licentia/internal/seed"
	tenantdomain "github.com/smallbiznis/licentia/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres core stores (local sqlite, mysql) are built from
			// the models directly.
			if err := conn.AutoMigrate(
				&tenantdomain.Business{},
				&tenantdomain.User{},
				&tenantdomain.TenantMembership{},
				&invitedomain.Invite{},
			); err != nil {
				return err
			}
		}
		return seed.EnsureAdminUser(conn)
	}),
)
