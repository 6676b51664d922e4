package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusCreated Status = "CREATED"
)

// Payment is the canonical record produced by a checkout. Financial fields
// never change after insert.
type Payment struct {
	ID                  string         `json:"id" gorm:"primaryKey"`
	OrganizationID      snowflake.ID   `json:"organization_id" gorm:"not null;index"`
	SourceType          string         `json:"source_type" gorm:"type:text;not null"`
	SourceID            string         `json:"source_id" gorm:"type:text;not null"`
	CustomerIdentityID  *string        `json:"customer_identity_id"`
	Status              Status         `json:"status" gorm:"type:text;not null"`
	Currency            string         `json:"currency" gorm:"type:text;not null"`
	TotalCents          int64          `json:"total_cents" gorm:"not null"`
	FeePolicyVersion    string         `json:"fee_policy_version" gorm:"type:text;not null"`
	PricingSnapshot     datatypes.JSON `json:"pricing_snapshot" gorm:"type:jsonb;not null"`
	PricingSnapshotHash *string        `json:"pricing_snapshot_hash"`
	IdempotencyKey      string         `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex"`
	ProcessorFeesStatus string         `json:"processor_fees_status" gorm:"type:text;not null"`
	ProcessorFeesActual *int64         `json:"processor_fees_actual"`
	CreatedAt           time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time      `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

var (
	ErrPaymentConflict = errors.New("payment already exists")
	ErrInvalidPayment  = errors.New("invalid payment")
)

// Repository persists payments. Every method runs on the handle it is given
// so callers can thread a transaction through.
type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Payment, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Payment, error)
	// Insert returns ErrPaymentConflict when either unique axis is taken.
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
}
