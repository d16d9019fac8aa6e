package throttle

import "go.uber.org/fx"

var Module = fx.Module("throttle",
	fx.Provide(NewLimiter),
)
