package service

import (
	"github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
	"github.com/smallbiznis/railzway-checkout/internal/pricing/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("pricing.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewFeeSettingsProvider),
	fx.Provide(func() domain.PricingFunc { return Compute }),
	fx.Provide(
		fx.Annotate(NewBookingResolver, fx.As(new(domain.Resolver)), fx.ResultTags(`group:"pricing_resolvers"`)),
		fx.Annotate(NewStoreOrderResolver, fx.As(new(domain.Resolver)), fx.ResultTags(`group:"pricing_resolvers"`)),
		fx.Annotate(NewTicketOrderResolver, fx.As(new(domain.Resolver)), fx.ResultTags(`group:"pricing_resolvers"`)),
		fx.Annotate(NewRegistrationResolver, fx.As(new(domain.Resolver)), fx.ResultTags(`group:"pricing_resolvers"`)),
	),
	fx.Provide(NewRegistry),
)
