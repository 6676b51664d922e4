package domain

import "context"

// Resolver builds a snapshot for one source type.
type Resolver interface {
	SourceType() SourceType
	Resolve(ctx context.Context, sourceID string) (*ResolvedSnapshot, error)
}

type FeeSettingsProvider interface {
	PlatformFees(ctx context.Context) (PlatformFees, error)
}

// PricingFunc is the pure subtotal/discount/fee computation.
type PricingFunc func(grossCents, discountCents int64, in PricingInput) PricingResult
