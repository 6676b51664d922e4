package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EntryType string

const (
	EntryTypeGross       EntryType = "GROSS"
	EntryTypePlatformFee EntryType = "PLATFORM_FEE"
)

// causation suffixes are part of the stored uniqueness axis; do not rename.
var causationSuffix = map[EntryType]string{
	EntryTypeGross:       "gross",
	EntryTypePlatformFee: "platform_fee",
}

// LedgerEntry is one immutable signed line tied to a payment.
type LedgerEntry struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	PaymentID     string       `gorm:"type:text;not null;index"`
	EntryType     EntryType    `gorm:"type:text;not null"`
	Amount        int64        `gorm:"not null"`
	Currency      string       `gorm:"type:text;not null"`
	SourceType    string       `gorm:"type:text;not null"`
	SourceID      string       `gorm:"type:text;not null"`
	CausationID   string       `gorm:"type:text;not null;uniqueIndex"`
	CorrelationID string       `gorm:"type:text;not null"`
	CreatedAt     time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// PaymentEntriesInput describes the money movement of one created payment.
type PaymentEntriesInput struct {
	PaymentID      string
	IdempotencyKey string
	Currency       string
	SourceType     string
	SourceID       string
	Gross          int64
	PlatformFee    int64
}

type Balance struct {
	PaymentID string
	Currency  string
	Amount    int64
	Entries   int
}

var (
	ErrInvalidPayment        = errors.New("ledger: payment id is required")
	ErrInvalidIdempotencyKey = errors.New("ledger: idempotency key is required")
	ErrInvalidCurrency       = errors.New("ledger: currency is required")
	ErrUnbalancedEntries     = errors.New("ledger: entries do not sum to gross minus platform fee")
)

// CausationID derives the per-entry uniqueness key from the checkout key.
func CausationID(idempotencyKey string, entryType EntryType) string {
	suffix, ok := causationSuffix[entryType]
	if !ok {
		suffix = string(entryType)
	}
	return idempotencyKey + ":" + suffix
}

// PaymentEntries builds the GROSS and PLATFORM_FEE lines for a payment. The
// amounts always sum to gross - |platformFee|.
func PaymentEntries(in PaymentEntriesInput) ([]LedgerEntry, error) {
	if in.PaymentID == "" {
		return nil, ErrInvalidPayment
	}
	if in.IdempotencyKey == "" {
		return nil, ErrInvalidIdempotencyKey
	}
	if in.Currency == "" {
		return nil, ErrInvalidCurrency
	}

	fee := in.PlatformFee
	if fee < 0 {
		fee = -fee
	}

	entries := []LedgerEntry{
		{
			PaymentID:     in.PaymentID,
			EntryType:     EntryTypeGross,
			Amount:        in.Gross,
			Currency:      in.Currency,
			SourceType:    in.SourceType,
			SourceID:      in.SourceID,
			CausationID:   CausationID(in.IdempotencyKey, EntryTypeGross),
			CorrelationID: in.IdempotencyKey,
		},
		{
			PaymentID:     in.PaymentID,
			EntryType:     EntryTypePlatformFee,
			Amount:        -fee,
			Currency:      in.Currency,
			SourceType:    in.SourceType,
			SourceID:      in.SourceID,
			CausationID:   CausationID(in.IdempotencyKey, EntryTypePlatformFee),
			CorrelationID: in.IdempotencyKey,
		},
	}

	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}
	if sum != in.Gross-fee {
		return nil, ErrUnbalancedEntries
	}
	return entries, nil
}

type Service interface {
	// EnsurePaymentEntries inserts any missing entries for the payment on db
	// and returns how many rows were written.
	EnsurePaymentEntries(ctx context.Context, db *gorm.DB, in PaymentEntriesInput) (int, error)
	ListByPayment(ctx context.Context, paymentID string) ([]LedgerEntry, error)
	PaymentBalance(ctx context.Context, paymentID string) (Balance, error)
}
