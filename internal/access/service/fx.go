package service

import (
	"github.com/smallbiznis/railzway-checkout/internal/access/domain"
	"github.com/smallbiznis/railzway-checkout/internal/access/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("access.service",
	fx.Provide(repository.Provide),
	fx.Provide(NewPolicyEvaluator),
	fx.Provide(NewInviteService),
	fx.Provide(func(s *InviteService) domain.InviteStore { return s }),
	fx.Provide(NewGate),
)
