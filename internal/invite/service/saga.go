package service

import (
	"github.com/smallbiznis/licentia/pkg/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runTwoStore executes fn with one open transaction on the tenant store and
// one on the core store. Both transactions stay open until fn has fully
// succeeded, so a failure on either side rolls back the other as well. On
// success the tenant store commits first, then the core store; a crash
// between the two commits leaves the stores inconsistent, which is an
// accepted limitation of running two physical databases without a
// distributed transaction coordinator.
func runTwoStore(log *zap.Logger, tenantConn, coreConn *gorm.DB, fn func(tenantTx, coreTx *gorm.DB) error) error {
	tenantTx := tenantConn.Begin()
	if tenantTx.Error != nil {
		return apperr.Persistence("could not open tenant store transaction", tenantTx.Error)
	}
	coreTx := coreConn.Begin()
	if coreTx.Error != nil {
		tenantTx.Rollback()
		return apperr.Persistence("could not open core store transaction", coreTx.Error)
	}

	if err := fn(tenantTx, coreTx); err != nil {
		tenantTx.Rollback()
		coreTx.Rollback()
		return err
	}

	if err := tenantTx.Commit().Error; err != nil {
		coreTx.Rollback()
		return apperr.Persistence("tenant store commit failed", err)
	}
	if err := coreTx.Commit().Error; err != nil {
		// The tenant store is already committed. This is the saga's known
		// gap; surface it loudly so operators can reconcile by hand.
		log.Error("core store commit failed after tenant store commit, stores are inconsistent",
			zap.Error(err),
		)
		return apperr.Persistence("core store commit failed after tenant store commit", err)
	}
	return nil
}
