package identity

import "go.uber.org/fx"

// Module wires the session-backed actor resolver.
var Module = fx.Module("identity",
	fx.Provide(NewContextResolver),
)
