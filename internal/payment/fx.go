package payment

import (
	"github.com/smallbiznis/railzway-checkout/internal/payment/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.repository",
	fx.Provide(repository.Provide),
)
