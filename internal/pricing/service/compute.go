package service

import "github.com/smallbiznis/railzway-checkout/internal/pricing/domain"

// Compute is the default pricing function. Organization overrides win field
// by field over platform defaults; platform organizations pay no fee.
func Compute(grossCents, discountCents int64, in domain.PricingInput) domain.PricingResult {
	if grossCents < 0 {
		grossCents = 0
	}
	if discountCents < 0 {
		discountCents = 0
	}
	if discountCents > grossCents {
		discountCents = grossCents
	}
	base := grossCents - discountCents

	mode := in.PlatformDefaultFeeMode
	if in.OrgFeeMode != nil && in.OrgFeeMode.Valid() {
		mode = *in.OrgFeeMode
	}
	if !mode.Valid() {
		mode = domain.FeeModeAdded
	}

	bps := in.PlatformDefaultFeeBps
	if in.OrgFeeBps != nil {
		bps = *in.OrgFeeBps
	}
	fixed := in.PlatformDefaultFeeFixedCents
	if in.OrgFeeFixedCents != nil {
		fixed = *in.OrgFeeFixedCents
	}
	if in.IsPlatformOrg {
		bps, fixed = 0, 0
	}
	if bps < 0 {
		bps = 0
	}
	if fixed < 0 {
		fixed = 0
	}

	var fee int64
	if base > 0 {
		fee = (base*bps+5_000)/10_000 + fixed
	}

	result := domain.PricingResult{
		SubtotalCents:   grossCents,
		DiscountCents:   discountCents,
		FeeMode:         mode,
		FeeBpsApplied:   bps,
		FeeFixedApplied: fixed,
	}

	switch mode {
	case domain.FeeModeIncluded:
		if fee > base {
			fee = base
		}
		result.PlatformFeeCents = fee
		result.TotalCents = base
	default:
		result.PlatformFeeCents = fee
		result.TotalCents = base + fee
	}
	return result
}
