package invite

import (
	"github.com/smallbiznis/licentia/internal/invite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invite.service",
	fx.Provide(service.NewService),
)
