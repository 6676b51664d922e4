package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/railzway-checkout/internal/pricing"
	"github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ResolverParams struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.SourceRepository
	Fees    domain.FeeSettingsProvider
	Pricing domain.PricingFunc `optional:"true"`
}

// resolverBase holds the collaborators every source strategy shares.
type resolverBase struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.SourceRepository
	fees    domain.FeeSettingsProvider
	compute domain.PricingFunc
}

func newResolverBase(p ResolverParams, name string) resolverBase {
	compute := p.Pricing
	if compute == nil {
		compute = Compute
	}
	return resolverBase{
		db:      p.DB,
		log:     p.Log.Named("pricing." + name),
		repo:    p.Repo,
		fees:    p.Fees,
		compute: compute,
	}
}

type priced struct {
	result        domain.PricingResult
	policyVersion string
}

func (b resolverBase) price(ctx context.Context, org *domain.Organization, gross, discount int64) (priced, error) {
	fees, err := b.fees.PlatformFees(ctx)
	if err != nil {
		return priced{}, err
	}
	result := b.compute(gross, discount, org.PricingInput(fees))
	b.log.Debug("priced source",
		zap.String("organization_id", org.ID.String()),
		zap.String("fee_mode", string(result.FeeMode)),
		zap.Int64("gross", result.SubtotalCents),
		zap.Int64("platform_fee", result.PlatformFeeCents),
	)
	return priced{
		result:        result,
		policyVersion: pricing.FeePolicyVersion(result.FeeMode, result.FeeBpsApplied, result.FeeFixedApplied),
	}, nil
}

func (b resolverBase) organization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	org, err := b.repo.FindOrganization(ctx, b.db, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func snapshotFrom(sourceType domain.SourceType, sourceID, currency string, p priced, lines []domain.LineItem) domain.PricingSnapshot {
	return domain.PricingSnapshot{
		Currency:            currency,
		Gross:               p.result.SubtotalCents,
		Discounts:           p.result.DiscountCents,
		Taxes:               0,
		PlatformFee:         p.result.PlatformFeeCents,
		Total:               p.result.TotalCents,
		NetToOrgPending:     domain.NetToOrg(p.result.SubtotalCents, p.result.PlatformFeeCents),
		ProcessorFeesStatus: domain.ProcessorFeesPending,
		ProcessorFeesActual: nil,
		FeeMode:             p.result.FeeMode,
		FeeBps:              p.result.FeeBpsApplied,
		FeeFixed:            p.result.FeeFixedApplied,
		FeePolicyVersion:    p.policyVersion,
		PromoPolicyVersion:  nil,
		SourceType:          sourceType,
		SourceID:            sourceID,
		LineItems:           lines,
	}
}

func parseNumericID(sourceID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(sourceID), 10, 64)
	if err != nil {
		return 0, domain.ErrInvalidSourceID
	}
	return id, nil
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func int64Ptr(v int64) *int64 { return &v }

// BookingResolver prices a single service booking.
type BookingResolver struct{ resolverBase }

func NewBookingResolver(p ResolverParams) *BookingResolver {
	return &BookingResolver{newResolverBase(p, "booking")}
}

func (r *BookingResolver) SourceType() domain.SourceType { return domain.SourceTypeBooking }

func (r *BookingResolver) Resolve(ctx context.Context, sourceID string) (*domain.ResolvedSnapshot, error) {
	id, err := parseNumericID(sourceID)
	if err != nil {
		return nil, err
	}
	booking, err := r.repo.FindBooking(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, domain.ErrSourceNotFound
	}
	org, err := r.organization(ctx, booking.OrganizationID)
	if err != nil {
		return nil, err
	}

	p, err := r.price(ctx, org, booking.Price, 0)
	if err != nil {
		return nil, err
	}

	bookingID := strconv.FormatInt(booking.ID, 10)
	lines := []domain.LineItem{{
		Quantity:         1,
		UnitPriceCents:   booking.Price,
		TotalAmountCents: int64Ptr(booking.Price),
		Currency:         booking.Currency,
		SourceLineID:     bookingID,
	}}

	return &domain.ResolvedSnapshot{
		OrganizationID:  booking.OrganizationID,
		BuyerIdentityID: booking.UserID,
		Snapshot:        snapshotFrom(domain.SourceTypeBooking, bookingID, booking.Currency, p, lines),
	}, nil
}

// StoreOrderResolver prices a storefront order including shipping.
type StoreOrderResolver struct{ resolverBase }

func NewStoreOrderResolver(p ResolverParams) *StoreOrderResolver {
	return &StoreOrderResolver{newResolverBase(p, "store_order")}
}

func (r *StoreOrderResolver) SourceType() domain.SourceType { return domain.SourceTypeStoreOrder }

func (r *StoreOrderResolver) Resolve(ctx context.Context, sourceID string) (*domain.ResolvedSnapshot, error) {
	id, err := parseNumericID(sourceID)
	if err != nil {
		return nil, err
	}
	order, err := r.repo.FindStoreOrder(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrSourceNotFound
	}
	if order.OwnerOrganizationID == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	if len(order.Lines) == 0 {
		return nil, domain.ErrSourceLinesEmpty
	}
	org, err := r.organization(ctx, *order.OwnerOrganizationID)
	if err != nil {
		return nil, err
	}

	subtotal := order.SubtotalCents
	if order.ShippingCents != nil {
		subtotal += *order.ShippingCents
	}
	var discount int64
	if order.DiscountCents != nil {
		discount = *order.DiscountCents
	}

	p, err := r.price(ctx, org, subtotal, discount)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.LineItem, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, domain.LineItem{
			Quantity:         line.Quantity,
			UnitPriceCents:   line.UnitPriceCents,
			TotalAmountCents: int64Ptr(line.UnitPriceCents * line.Quantity),
			Currency:         order.Currency,
			SourceLineID:     strconv.FormatInt(line.ID, 10),
		})
	}

	return &domain.ResolvedSnapshot{
		OrganizationID:  *order.OwnerOrganizationID,
		BuyerIdentityID: order.UserID,
		Snapshot:        snapshotFrom(domain.SourceTypeStoreOrder, strconv.FormatInt(order.ID, 10), order.Currency, p, lines),
	}, nil
}

// TicketOrderResolver prices an event ticket order and surfaces the event
// and ticket types for the access gate.
type TicketOrderResolver struct{ resolverBase }

func NewTicketOrderResolver(p ResolverParams) *TicketOrderResolver {
	return &TicketOrderResolver{newResolverBase(p, "ticket_order")}
}

func (r *TicketOrderResolver) SourceType() domain.SourceType { return domain.SourceTypeTicketOrder }

func (r *TicketOrderResolver) Resolve(ctx context.Context, sourceID string) (*domain.ResolvedSnapshot, error) {
	order, err := r.repo.FindTicketOrder(ctx, r.db, strings.TrimSpace(sourceID))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrSourceNotFound
	}
	if len(order.Lines) == 0 {
		return nil, domain.ErrSourceLinesEmpty
	}
	org, err := r.organization(ctx, order.OrganizationID)
	if err != nil {
		return nil, err
	}

	var gross int64
	lines := make([]domain.LineItem, 0, len(order.Lines))
	ticketTypeIDs := make([]int64, 0, len(order.Lines))
	for _, line := range order.Lines {
		gross += clampNonNegative(line.TotalAmount)
		ticketTypeIDs = append(ticketTypeIDs, line.TicketTypeID)
		lines = append(lines, domain.LineItem{
			Quantity:         line.Qty,
			UnitPriceCents:   line.UnitAmount,
			TotalAmountCents: int64Ptr(line.TotalAmount),
			Currency:         order.Currency,
			SourceLineID:     strconv.FormatInt(line.ID, 10),
			TicketTypeID:     int64Ptr(line.TicketTypeID),
		})
	}

	p, err := r.price(ctx, org, gross, 0)
	if err != nil {
		return nil, err
	}

	return &domain.ResolvedSnapshot{
		OrganizationID:  order.OrganizationID,
		BuyerIdentityID: order.BuyerIdentityID,
		EventID:         order.EventID,
		TicketTypeIDs:   ticketTypeIDs,
		Snapshot:        snapshotFrom(domain.SourceTypeTicketOrder, order.ID, order.Currency, p, lines),
	}, nil
}

// RegistrationResolver prices a tournament registration.
type RegistrationResolver struct{ resolverBase }

func NewRegistrationResolver(p ResolverParams) *RegistrationResolver {
	return &RegistrationResolver{newResolverBase(p, "registration")}
}

func (r *RegistrationResolver) SourceType() domain.SourceType {
	return domain.SourceTypePadelRegistration
}

func (r *RegistrationResolver) Resolve(ctx context.Context, sourceID string) (*domain.ResolvedSnapshot, error) {
	registration, err := r.repo.FindRegistration(ctx, r.db, strings.TrimSpace(sourceID))
	if err != nil {
		return nil, err
	}
	if registration == nil {
		return nil, domain.ErrSourceNotFound
	}
	if len(registration.Lines) == 0 {
		return nil, domain.ErrSourceLinesEmpty
	}
	org, err := r.organization(ctx, registration.OrganizationID)
	if err != nil {
		return nil, err
	}

	var gross int64
	lines := make([]domain.LineItem, 0, len(registration.Lines))
	for _, line := range registration.Lines {
		gross += clampNonNegative(line.TotalAmount)
		lines = append(lines, domain.LineItem{
			Quantity:         line.Qty,
			UnitPriceCents:   line.UnitAmount,
			TotalAmountCents: int64Ptr(line.TotalAmount),
			Currency:         registration.Currency,
			SourceLineID:     strconv.FormatInt(line.ID, 10),
			Label:            line.Label,
		})
	}

	p, err := r.price(ctx, org, gross, 0)
	if err != nil {
		return nil, err
	}

	return &domain.ResolvedSnapshot{
		OrganizationID:  registration.OrganizationID,
		BuyerIdentityID: registration.BuyerIdentityID,
		EventID:         registration.EventID,
		Snapshot:        snapshotFrom(domain.SourceTypePadelRegistration, registration.ID, registration.Currency, p, lines),
	}, nil
}
