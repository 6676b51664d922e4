package service

import (
	"context"

	"github.com/smallbiznis/railzway-checkout/internal/config"
	"github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
)

type feeSettings struct {
	holder *config.FeeSettingsHolder
}

// NewFeeSettingsProvider reads platform defaults from the hot-reloaded holder.
func NewFeeSettingsProvider(holder *config.FeeSettingsHolder) domain.FeeSettingsProvider {
	return &feeSettings{holder: holder}
}

func (f *feeSettings) PlatformFees(context.Context) (domain.PlatformFees, error) {
	current := f.holder.Get()
	mode := domain.FeeMode(current.DefaultMode)
	if !mode.Valid() {
		mode = domain.FeeModeAdded
	}
	return domain.PlatformFees{
		FeeBps:        current.FeeBps,
		FeeFixedCents: current.FeeFixedCents,
		DefaultMode:   mode,
	}, nil
}
