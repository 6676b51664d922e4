package repository

import (
	"context"

	"github.com/smallbiznis/railzway-checkout/internal/payment/domain"
	pkgdb "github.com/smallbiznis/railzway-checkout/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, organization_id, source_type, source_id, customer_identity_id, status,
	currency, total_cents, fee_policy_version, pricing_snapshot, pricing_snapshot_hash,
	idempotency_key, processor_fees_status, processor_fees_actual, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `SELECT `+paymentColumns+` FROM payments WHERE id = ? LIMIT 1`, id)
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.Payment, error) {
	return r.findOne(ctx, db, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = ? LIMIT 1`, key)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.Payment, error) {
	var item domain.Payment
	if err := db.WithContext(ctx).Raw(query, arg).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	if payment == nil || payment.ID == "" || payment.IdempotencyKey == "" {
		return domain.ErrInvalidPayment
	}
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		payment.ID,
		payment.OrganizationID,
		payment.SourceType,
		payment.SourceID,
		payment.CustomerIdentityID,
		string(payment.Status),
		payment.Currency,
		payment.TotalCents,
		payment.FeePolicyVersion,
		payment.PricingSnapshot,
		payment.PricingSnapshotHash,
		payment.IdempotencyKey,
		payment.ProcessorFeesStatus,
		payment.ProcessorFeesActual,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return domain.ErrPaymentConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrPaymentConflict
	}
	return nil
}
