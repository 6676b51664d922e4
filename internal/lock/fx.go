package lock

import "go.uber.org/fx"

var Module = fx.Module("checkout.lock",
	fx.Provide(NewRedisClient),
	fx.Provide(NewCheckoutLock),
)
