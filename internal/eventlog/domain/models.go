package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventType string

// EventPaymentCreated records the PAYMENT_CREATED fact.
const EventPaymentCreated EventType = "payment.created"

const AggregatePayment = "payment"

// Record is the append-only domain fact.
type Record struct {
	ID             string         `gorm:"primaryKey;type:text"`
	EventType      EventType      `gorm:"type:text;not null"`
	AggregateType  string         `gorm:"type:text;not null"`
	AggregateID    string         `gorm:"type:text;not null"`
	OrganizationID snowflake.ID   `gorm:"not null"`
	IdempotencyKey string         `gorm:"type:text;not null;uniqueIndex"`
	CorrelationID  string         `gorm:"type:text;not null"`
	Payload        datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "event_log" }

// OutboxRecord is the relay queue row paired with a Record.
type OutboxRecord struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	EventID       string         `gorm:"type:text;not null"`
	EventType     EventType      `gorm:"type:text;not null"`
	AggregateID   string         `gorm:"type:text;not null"`
	DedupeKey     string         `gorm:"type:text;not null;uniqueIndex"`
	CorrelationID string         `gorm:"type:text;not null"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null"`
	Attempts      int            `gorm:"not null;default:0"`
	LastError     *string        `gorm:"type:text"`
	AvailableAt   time.Time      `gorm:"not null"`
	PublishedAt   *time.Time
	ParkedAt      *time.Time
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (OutboxRecord) TableName() string { return "outbox_events" }

type AppendRequest struct {
	EventType      EventType
	AggregateType  string
	AggregateID    string
	OrganizationID snowflake.ID
	// IdempotencyKey scopes the fact; the stored key is prefixed with EventType.
	IdempotencyKey string
	CorrelationID  string
	Payload        map[string]any
}

type AppendResult struct {
	EventID  string
	Appended bool
}

// PaymentCreatedPayload is the totals snapshot carried by payment.created.
type PaymentCreatedPayload struct {
	PaymentID        string
	EventID          *int64
	Status           string
	AmountCents      int64
	PlatformFeeCents int64
	GrossCents       int64
	NetToOrgCents    int64
	Currency         string
	OrganizationID   string
	SourceType       string
	SourceID         string
}

func (p PaymentCreatedPayload) ToMap() map[string]any {
	out := map[string]any{
		"paymentId":        p.PaymentID,
		"status":           p.Status,
		"amountCents":      p.AmountCents,
		"platformFeeCents": p.PlatformFeeCents,
		"grossCents":       p.GrossCents,
		"netToOrgCents":    p.NetToOrgCents,
		"currency":         p.Currency,
		"organizationId":   p.OrganizationID,
		"sourceType":       p.SourceType,
		"sourceId":         p.SourceID,
	}
	if p.EventID != nil {
		out["eventId"] = *p.EventID
	}
	return out
}

var (
	ErrInvalidEventType      = errors.New("eventlog: event type is required")
	ErrInvalidAggregate      = errors.New("eventlog: aggregate is required")
	ErrInvalidIdempotencyKey = errors.New("eventlog: idempotency key is required")
)

// ScopedKey is the stored uniqueness key for an event of the given type.
func ScopedKey(eventType EventType, idempotencyKey string) string {
	return string(eventType) + ":" + idempotencyKey
}

type Writer interface {
	// Append writes the event log row and, only when that row is new, its
	// outbox row. Both writes use db so they commit with the caller.
	Append(ctx context.Context, db *gorm.DB, req AppendRequest) (AppendResult, error)
}
