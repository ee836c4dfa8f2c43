// Package seed bootstraps the core store so a fresh install is usable
// without manual inserts.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/smallbiznis/licentia/internal/tenant/domain"
	"gorm.io/gorm"
)

const (
	defaultAdminEmail   = "admin@licentia.local"
	defaultAdminDisplay = "Licentia Admin"
)

// EnsureAdminUser makes sure the default admin user exists. Credential
// issuance for it happens in the external identity gate; only the user row
// is owned here.
func EnsureAdminUser(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user tenantdomain.User
		err := tx.Where("email = ?", defaultAdminEmail).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		user = tenantdomain.User{
			ID:        node.Generate(),
			Name:      defaultAdminDisplay,
			Email:     defaultAdminEmail,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(&user).Error
	})
}
