package domain

import (
	"strings"

	"github.com/bwmarrin/snowflake"
)

type SourceType string

const (
	SourceTypeTicketOrder       SourceType = "TICKET_ORDER"
	SourceTypeBooking           SourceType = "BOOKING"
	SourceTypePadelRegistration SourceType = "PADEL_REGISTRATION"
	SourceTypeStoreOrder        SourceType = "STORE_ORDER"
	SourceTypeSubscription      SourceType = "SUBSCRIPTION"
	SourceTypeMembership        SourceType = "MEMBERSHIP"
)

// ParseSourceType normalizes caller input. TOURNAMENT_REGISTRATION is accepted
// as the public name of PADEL_REGISTRATION.
func ParseSourceType(raw string) SourceType {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "TOURNAMENT_REGISTRATION" {
		return SourceTypePadelRegistration
	}
	return SourceType(normalized)
}

type FeeMode string

const (
	FeeModeAdded    FeeMode = "ADDED"
	FeeModeIncluded FeeMode = "INCLUDED"
)

func (m FeeMode) Valid() bool {
	return m == FeeModeAdded || m == FeeModeIncluded
}

type ProcessorFeesStatus string

const (
	ProcessorFeesPending ProcessorFeesStatus = "PENDING"
)

// LineItem is one chargeable line captured in a snapshot.
type LineItem struct {
	Quantity         int64  `json:"quantity"`
	UnitPriceCents   int64  `json:"unitPriceCents"`
	TotalAmountCents *int64 `json:"totalAmountCents,omitempty"`
	Currency         string `json:"currency"`
	SourceLineID     string `json:"sourceLineId,omitempty"`
	Label            string `json:"label,omitempty"`
	TicketTypeID     *int64 `json:"ticketTypeId,omitempty"`
}

// PricingSnapshot is the immutable monetary basis of one checkout. All amounts
// are integer minor units.
type PricingSnapshot struct {
	Currency            string              `json:"currency"`
	Gross               int64               `json:"gross"`
	Discounts           int64               `json:"discounts"`
	Taxes               int64               `json:"taxes"`
	PlatformFee         int64               `json:"platformFee"`
	Total               int64               `json:"total"`
	NetToOrgPending     int64               `json:"netToOrgPending"`
	ProcessorFeesStatus ProcessorFeesStatus `json:"processorFeesStatus"`
	ProcessorFeesActual *int64              `json:"processorFeesActual"`
	FeeMode             FeeMode             `json:"feeMode"`
	FeeBps              int64               `json:"feeBps"`
	FeeFixed            int64               `json:"feeFixed"`
	FeePolicyVersion    string              `json:"feePolicyVersion"`
	PromoPolicyVersion  *string             `json:"promoPolicyVersion"`
	SourceType          SourceType          `json:"sourceType"`
	SourceID            string              `json:"sourceId"`
	LineItems           []LineItem          `json:"lineItems"`
}

// NetToOrg returns max(0, gross - platformFee).
func NetToOrg(gross, platformFee int64) int64 {
	if net := gross - platformFee; net > 0 {
		return net
	}
	return 0
}

// Validate enforces the only hard financial invariants of a snapshot.
func (s PricingSnapshot) Validate() error {
	if s.PlatformFee < 0 {
		return ErrPricingSnapshotInvalid
	}
	if s.NetToOrgPending != NetToOrg(s.Gross, s.PlatformFee) {
		return ErrPricingSnapshotInvalid
	}
	return nil
}

// ResolvedSnapshot is what a resolver hands back to the orchestrator.
type ResolvedSnapshot struct {
	OrganizationID  snowflake.ID
	BuyerIdentityID *string
	Snapshot        PricingSnapshot
	EventID         *int64
	TicketTypeIDs   []int64
}

// PlatformFees is the platform default fee policy.
type PlatformFees struct {
	FeeBps        int64
	FeeFixedCents int64
	DefaultMode   FeeMode
}

// PricingInput carries the fee policy candidates for one computation.
type PricingInput struct {
	OrgFeeMode                   *FeeMode
	OrgFeeBps                    *int64
	OrgFeeFixedCents             *int64
	PlatformDefaultFeeMode       FeeMode
	PlatformDefaultFeeBps        int64
	PlatformDefaultFeeFixedCents int64
	IsPlatformOrg                bool
}

type PricingResult struct {
	SubtotalCents    int64
	DiscountCents    int64
	PlatformFeeCents int64
	TotalCents       int64
	FeeMode          FeeMode
	FeeBpsApplied    int64
	FeeFixedApplied  int64
}

var checkoutSourceTypes = map[SourceType]struct{}{
	SourceTypeTicketOrder:       {},
	SourceTypeBooking:           {},
	SourceTypePadelRegistration: {},
	SourceTypeStoreOrder:        {},
}

// EnsureCheckoutAllowed gates source types before any I/O. Subscription and
// membership sources are recognized but not yet enabled for checkout.
func EnsureCheckoutAllowed(sourceType SourceType) error {
	switch sourceType {
	case SourceTypeSubscription, SourceTypeMembership:
		return ErrSourceTypeNotAllowedInMVP
	}
	if _, ok := checkoutSourceTypes[sourceType]; !ok {
		return ErrSourceTypeNotSupported
	}
	return nil
}
