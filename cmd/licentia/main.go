package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licentia/internal/clock"
	"github.com/smallbiznis/licentia/internal/config"
	"github.com/smallbiznis/licentia/internal/credit"
	"github.com/smallbiznis/licentia/internal/invite"
	"github.com/smallbiznis/licentia/internal/license"
	"github.com/smallbiznis/licentia/internal/logger"
	"github.com/smallbiznis/licentia/internal/migration"
	"github.com/smallbiznis/licentia/internal/notify"
	"github.com/smallbiznis/licentia/internal/pricing"
	"github.com/smallbiznis/licentia/internal/provision"
	"github.com/smallbiznis/licentia/internal/server"
	"github.com/smallbiznis/licentia/internal/tenant"
	"github.com/smallbiznis/licentia/internal/tenantdb"
	"github.com/smallbiznis/licentia/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(RegisterSnowflake),
		config.Module,
		logger.Module,
		clock.Module,
		db.Module,
		migration.Module,
		tenantdb.Module,
		notify.Module,
		provision.Module,
		tenant.Module,
		invite.Module,
		pricing.Module,
		credit.Module,
		license.Module,
		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
