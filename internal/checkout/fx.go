package checkout

import (
	accessservice "github.com/smallbiznis/railzway-checkout/internal/access/service"
	"github.com/smallbiznis/railzway-checkout/internal/checkout/service"
	"github.com/smallbiznis/railzway-checkout/internal/lock"
	pricingservice "github.com/smallbiznis/railzway-checkout/internal/pricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(
		func(r *pricingservice.Registry) service.PricingResolver { return r },
		func(g *accessservice.Gate) service.AccessGate { return g },
		func(l *lock.CheckoutLock) service.InFlightLock {
			if l == nil {
				return nil
			}
			return l
		},
	),
	fx.Provide(service.NewService),
)
