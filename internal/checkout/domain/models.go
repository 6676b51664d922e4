package domain

import (
	paymentdomain "github.com/smallbiznis/railzway-checkout/internal/payment/domain"
	pricingdomain "github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
)

// CreateCheckoutInput is the single entry point request.
type CreateCheckoutInput struct {
	SourceType     pricingdomain.SourceType
	SourceID       string
	IdempotencyKey string
	// PaymentID is optional; a new id is generated when empty.
	PaymentID        *string
	BuyerIdentityRef *string
	InviteToken      *string
	// ResolvedSnapshot skips the pricing resolver when set.
	ResolvedSnapshot *pricingdomain.ResolvedSnapshot
	// PricingSnapshotHash is echoed back when a replayed payment has none.
	PricingSnapshotHash *string
	SkipAccessChecks    bool
}

type CreateCheckoutOutput struct {
	PaymentID           string
	Status              paymentdomain.Status
	ClientSecret        *string
	PricingSnapshotHash *string
	Replayed            bool
}
