package service

import (
	"context"

	"github.com/smallbiznis/railzway-checkout/internal/access/domain"
	"gorm.io/gorm"
)

// PolicyEvaluator decides access from the event's latest policy row.
type PolicyEvaluator struct {
	repo domain.Repository
}

func NewPolicyEvaluator(repo domain.Repository) domain.Evaluator {
	return &PolicyEvaluator{repo: repo}
}

func (e *PolicyEvaluator) Evaluate(ctx context.Context, db *gorm.DB, req domain.EvaluateRequest) (domain.Decision, error) {
	policy, err := e.repo.LatestPolicy(ctx, db, req.EventID)
	if err != nil {
		return domain.Decision{}, err
	}
	if policy == nil {
		return domain.Decision{Allowed: true}, nil
	}
	if policy.Mode == domain.ModeInviteOnly && req.Intent != domain.IntentInviteToken {
		return domain.Decision{Allowed: false, ReasonCode: domain.ReasonInviteOnly}, nil
	}
	return domain.Decision{Allowed: true}, nil
}
