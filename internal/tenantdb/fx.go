package tenantdb

import (
	"context"

	"go.uber.org/fx"
)

func registerHooks(lc fx.Lifecycle, reg Registry) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return reg.Close()
		},
	})
}

var Module = fx.Module("tenantdb",
	fx.Provide(NewRegistry),
	fx.Invoke(registerHooks),
)
