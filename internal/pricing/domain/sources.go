package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const OrgTypePlatform = "PLATFORM"

type Organization struct {
	ID                    snowflake.ID `gorm:"primaryKey"`
	Name                  string
	OrgType               string
	FeeMode               *string
	PlatformFeeBps        *int64
	PlatformFeeFixedCents *int64
}

func (Organization) TableName() string { return "organizations" }

// PricingInput builds the fee candidates for this organization.
func (o Organization) PricingInput(fees PlatformFees) PricingInput {
	in := PricingInput{
		OrgFeeBps:                    o.PlatformFeeBps,
		OrgFeeFixedCents:             o.PlatformFeeFixedCents,
		PlatformDefaultFeeMode:       fees.DefaultMode,
		PlatformDefaultFeeBps:        fees.FeeBps,
		PlatformDefaultFeeFixedCents: fees.FeeFixedCents,
		IsPlatformOrg:                o.OrgType == OrgTypePlatform,
	}
	if o.FeeMode != nil {
		mode := FeeMode(*o.FeeMode)
		if mode.Valid() {
			in.OrgFeeMode = &mode
		}
	}
	return in
}

type Booking struct {
	ID             int64
	OrganizationID snowflake.ID
	UserID         *string
	Price          int64
	Currency       string
}

type StoreOrder struct {
	ID                  int64
	StoreID             int64
	OwnerOrganizationID *snowflake.ID
	UserID              *string
	Currency            string
	SubtotalCents       int64
	ShippingCents       *int64
	DiscountCents       *int64
	Lines               []StoreOrderLine `gorm:"-"`
}

type StoreOrderLine struct {
	ID             int64
	OrderID        int64
	Quantity       int64
	UnitPriceCents int64
}

type TicketOrder struct {
	ID              string
	OrganizationID  snowflake.ID
	EventID         *int64
	BuyerIdentityID *string
	Currency        string
	Lines           []TicketOrderLine `gorm:"-"`
}

type TicketOrderLine struct {
	ID            int64
	TicketOrderID string
	TicketTypeID  int64
	Qty           int64
	UnitAmount    int64
	TotalAmount   int64
}

type Registration struct {
	ID              string
	OrganizationID  snowflake.ID
	EventID         *int64
	BuyerIdentityID *string
	Currency        string
	Lines           []RegistrationLine `gorm:"-"`
}

type RegistrationLine struct {
	ID             int64
	RegistrationID string
	Label          string
	Qty            int64
	UnitAmount     int64
	TotalAmount    int64
}

// SourceRepository loads purchasable aggregates. Lookups return nil, nil when
// the row does not exist.
type SourceRepository interface {
	FindOrganization(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Organization, error)
	FindBooking(ctx context.Context, db *gorm.DB, id int64) (*Booking, error)
	FindStoreOrder(ctx context.Context, db *gorm.DB, id int64) (*StoreOrder, error)
	FindTicketOrder(ctx context.Context, db *gorm.DB, id string) (*TicketOrder, error)
	FindRegistration(ctx context.Context, db *gorm.DB, id string) (*Registration, error)
}
