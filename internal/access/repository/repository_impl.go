package repository

import (
	"context"

	"github.com/smallbiznis/railzway-checkout/internal/access/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LatestPolicy(ctx context.Context, db *gorm.DB, eventID int64) (*domain.Policy, error) {
	var item domain.Policy
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_id, policy_version, mode, guest_checkout_allowed,
			invite_token_allowed, invite_identity_match
		 FROM event_access_policies
		 WHERE event_id = ?
		 ORDER BY policy_version DESC
		 LIMIT 1`,
		eventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindEmailIdentity(ctx context.Context, db *gorm.DB, id string) (*domain.EmailIdentity, error) {
	var item domain.EmailIdentity
	err := db.WithContext(ctx).Raw(
		`SELECT id, email_normalized, user_id
		 FROM email_identities
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
	return &item, nil
}

func (r *repo) InsertInviteToken(ctx context.Context, db *gorm.DB, token *domain.InviteToken) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invite_tokens (
			id, event_id, token_hash, email_normalized, ticket_type_id, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.EventID,
		token.TokenHash,
		token.EmailNormalized,
		token.TicketTypeID,
		token.ExpiresAt,
		token.CreatedAt,
	).Error
}

func (r *repo) FindInviteToken(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.InviteToken, error) {
	var item domain.InviteToken
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_id, token_hash, email_normalized, ticket_type_id,
			expires_at, used_at, used_by_identity_id
		 FROM invite_tokens
		 WHERE token_hash = ?
		 LIMIT 1`,
		tokenHash,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// ConsumeInviteToken marks the token used when every scope condition holds.
// It reports false when no row qualified.
func (r *repo) ConsumeInviteToken(ctx context.Context, db *gorm.DB, params domain.ConsumeParams) (bool, error) {
	ticketTypeIDs := params.TicketTypeIDs
	if len(ticketTypeIDs) == 0 {
		// keeps the IN clause valid; ids are positive
		ticketTypeIDs = []int64{-1}
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE invite_tokens
		 SET used_at = ?, used_by_identity_id = ?
		 WHERE token_hash = ?
		   AND event_id = ?
		   AND used_at IS NULL
		   AND expires_at > ?
		   AND (email_normalized IS NULL OR email_normalized = ?)
		   AND (ticket_type_id IS NULL OR ticket_type_id IN ?)`,
		params.Now,
		params.UsedByIdentityID,
		params.TokenHash,
		params.EventID,
		params.Now,
		params.EmailNormalized,
		ticketTypeIDs,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
