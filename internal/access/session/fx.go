package session

import "go.uber.org/fx"

var Module = fx.Module("access.session",
	fx.Provide(NewManager),
)
