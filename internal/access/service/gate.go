package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/railzway-checkout/internal/access/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type GateParams struct {
	fx.In

	Log       *zap.Logger
	Repo      domain.Repository
	Evaluator domain.Evaluator
	Invites   domain.InviteStore
}

// Gate enforces invite and guest-checkout rules for ticket orders.
type Gate struct {
	log       *zap.Logger
	repo      domain.Repository
	evaluator domain.Evaluator
	invites   domain.InviteStore
}

func NewGate(p GateParams) *Gate {
	return &Gate{
		log:       p.Log.Named("access.gate"),
		repo:      p.Repo,
		evaluator: p.Evaluator,
		invites:   p.Invites,
	}
}

type CheckRequest struct {
	EventID          *int64
	TicketTypeIDs    []int64
	BuyerIdentityRef *string
	InviteToken      *string
}

// Check runs inside the checkout transaction; a consumed invite is rolled
// back together with the payment.
func (g *Gate) Check(ctx context.Context, tx *gorm.DB, req CheckRequest) error {
	if req.EventID == nil || *req.EventID <= 0 {
		return domain.ErrEventIDRequired
	}
	eventID := *req.EventID
	token := trimmed(req.InviteToken)
	buyerRef := trimmed(req.BuyerIdentityRef)

	policy, err := g.repo.LatestPolicy(ctx, tx, eventID)
	if err != nil {
		return err
	}
	if policy == nil {
		if token != "" {
			return domain.ErrInviteTokenInvalid
		}
		return nil
	}

	if policy.Mode == domain.ModeInviteOnly && token == "" {
		return domain.ErrInviteTokenRequired
	}
	if token != "" && (!policy.InviteTokenAllowed || policy.InviteIdentityMatch == domain.IdentityMatchUsername) {
		return domain.ErrInviteTokenInvalid
	}
	if buyerRef == "" && !policy.GuestCheckoutAllowed {
		return domain.ErrGuestCheckoutNotAllowed
	}

	var identity *domain.EmailIdentity
	if buyerRef != "" {
		identity, err = g.repo.FindEmailIdentity(ctx, tx, buyerRef)
		if err != nil {
			return err
		}
	}

	intent := domain.IntentView
	if token != "" {
		intent = domain.IntentInviteToken
	}
	var userID *string
	if identity != nil {
		userID = identity.UserID
	}
	decision, err := g.evaluator.Evaluate(ctx, tx, domain.EvaluateRequest{
		EventID: eventID,
		UserID:  userID,
		Intent:  intent,
	})
	if err != nil {
		return err
	}
	if !decision.Allowed {
		g.log.Debug("access denied by evaluator",
			zap.Int64("event_id", eventID),
			zap.String("reason", decision.ReasonCode),
		)
		return domain.ErrorForReason(decision.ReasonCode)
	}

	if buyerRef == "" {
		if token != "" {
			return domain.ErrInviteTokenInvalid
		}
		return nil
	}

	if identity == nil {
		return domain.ErrInviteTokenInvalid
	}
	if identity.IsGuest() && !policy.GuestCheckoutAllowed {
		return domain.ErrGuestCheckoutNotAllowed
	}
	if token == "" {
		return nil
	}

	usedBy := buyerRef
	return g.invites.Consume(ctx, tx, domain.ConsumeInviteRequest{
		EventID:          eventID,
		Token:            token,
		EmailNormalized:  identity.EmailNormalized,
		TicketTypeIDs:    req.TicketTypeIDs,
		UsedByIdentityID: &usedBy,
	})
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
