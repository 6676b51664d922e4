package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	ModePublic     = "PUBLIC"
	ModeInviteOnly = "INVITE_ONLY"

	IdentityMatchEmail    = "EMAIL"
	IdentityMatchUsername = "USERNAME"

	ReasonInviteOnly = "INVITE_ONLY"
)

// Policy is one version of an event's access rules. The highest
// policy_version per event is the active one.
type Policy struct {
	ID                   snowflake.ID
	EventID              int64
	PolicyVersion        int
	Mode                 string
	GuestCheckoutAllowed bool
	InviteTokenAllowed   bool
	InviteIdentityMatch  string
}

// EmailIdentity is a buyer reference. UserID is nil for guest identities.
type EmailIdentity struct {
	ID              string
	EmailNormalized string
	UserID          *string
}

func (i EmailIdentity) IsGuest() bool {
	return i.UserID == nil || *i.UserID == ""
}

type InviteToken struct {
	ID               snowflake.ID
	EventID          int64
	TokenHash        string
	EmailNormalized  *string
	TicketTypeID     *int64
	ExpiresAt        time.Time
	UsedAt           *time.Time
	UsedByIdentityID *string
	CreatedAt        time.Time
}

type Intent string

const (
	IntentView        Intent = "VIEW"
	IntentInviteToken Intent = "INVITE_TOKEN"
)

type EvaluateRequest struct {
	EventID int64
	UserID  *string
	Intent  Intent
}

type Decision struct {
	Allowed    bool
	ReasonCode string
}

// Evaluator decides whether a user may act on an event. db is the caller's
// transaction handle.
type Evaluator interface {
	Evaluate(ctx context.Context, db *gorm.DB, req EvaluateRequest) (Decision, error)
}

type ConsumeInviteRequest struct {
	EventID          int64
	Token            string
	EmailNormalized  string
	TicketTypeIDs    []int64
	UsedByIdentityID *string
}

// InviteStore consumes single-use invite tokens inside the caller's transaction.
type InviteStore interface {
	Consume(ctx context.Context, tx *gorm.DB, req ConsumeInviteRequest) error
}

type ConsumeParams struct {
	TokenHash        string
	EventID          int64
	EmailNormalized  string
	TicketTypeIDs    []int64
	UsedByIdentityID *string
	Now              time.Time
}

type Repository interface {
	LatestPolicy(ctx context.Context, db *gorm.DB, eventID int64) (*Policy, error)
	FindEmailIdentity(ctx context.Context, db *gorm.DB, id string) (*EmailIdentity, error)
	InsertInviteToken(ctx context.Context, db *gorm.DB, token *InviteToken) error
	FindInviteToken(ctx context.Context, db *gorm.DB, tokenHash string) (*InviteToken, error)
	ConsumeInviteToken(ctx context.Context, db *gorm.DB, params ConsumeParams) (bool, error)
}
