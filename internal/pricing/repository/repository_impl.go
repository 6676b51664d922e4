package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.SourceRepository {
	return &repo{}
}

func (r *repo) FindOrganization(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	var item domain.Organization
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, org_type, fee_mode, platform_fee_bps, platform_fee_fixed_cents
		 FROM organizations
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindBooking(ctx context.Context, db *gorm.DB, id int64) (*domain.Booking, error) {
	var item domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, user_id, price, currency
		 FROM bookings
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindStoreOrder(ctx context.Context, db *gorm.DB, id int64) (*domain.StoreOrder, error) {
	var item domain.StoreOrder
	err := db.WithContext(ctx).Raw(
		`SELECT o.id, o.store_id, s.owner_organization_id, o.user_id, o.currency,
			o.subtotal_cents, o.shipping_cents, o.discount_cents
		 FROM store_orders o
		 JOIN stores s ON s.id = o.store_id
		 WHERE o.id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}

	var lines []domain.StoreOrderLine
	if err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, quantity, unit_price_cents
		 FROM store_order_lines
		 WHERE order_id = ?
		 ORDER BY id ASC`,
		item.ID,
	).Scan(&lines).Error; err != nil {
		return nil, err
	}
	item.Lines = lines
	return &item, nil
}

func (r *repo) FindTicketOrder(ctx context.Context, db *gorm.DB, id string) (*domain.TicketOrder, error) {
	var item domain.TicketOrder
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, event_id, buyer_identity_id, currency
		 FROM ticket_orders
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}

	var lines []domain.TicketOrderLine
	if err := db.WithContext(ctx).Raw(
		`SELECT id, ticket_order_id, ticket_type_id, qty, unit_amount, total_amount
		 FROM ticket_order_lines
		 WHERE ticket_order_id = ?
		 ORDER BY id ASC`,
		item.ID,
	).Scan(&lines).Error; err != nil {
		return nil, err
	}
	item.Lines = lines
	return &item, nil
}

func (r *repo) FindRegistration(ctx context.Context, db *gorm.DB, id string) (*domain.Registration, error) {
	var item domain.Registration
	err := db.WithContext(ctx).Raw(
		`SELECT id, organization_id, event_id, buyer_identity_id, currency
		 FROM tournament_registrations
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}

	var lines []domain.RegistrationLine
	if err := db.WithContext(ctx).Raw(
		`SELECT id, registration_id, label, qty, unit_amount, total_amount
		 FROM tournament_registration_lines
		 WHERE registration_id = ?
		 ORDER BY id ASC`,
		item.ID,
	).Scan(&lines).Error; err != nil {
		return nil, err
	}
	item.Lines = lines
	return &item, nil
}
