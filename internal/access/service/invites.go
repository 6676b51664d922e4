package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/railzway-checkout/internal/access/domain"
	"github.com/smallbiznis/railzway-checkout/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type InviteParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

// InviteService issues and consumes single-use invite tokens. Only the sha256
// of a token is stored.
type InviteService struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewInviteService(p InviteParams) *InviteService {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &InviteService{
		db:    p.DB,
		log:   p.Log.Named("access.invites"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

type IssueInviteRequest struct {
	EventID      int64
	Email        string
	TicketTypeID *int64
	TTL          time.Duration
}

// Issue creates a token and returns its plaintext form exactly once.
func (s *InviteService) Issue(ctx context.Context, req IssueInviteRequest) (string, error) {
	if req.EventID <= 0 {
		return "", domain.ErrEventIDRequired
	}
	if req.TTL <= 0 {
		return "", errors.New("invite ttl must be positive")
	}

	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	now := s.clock.Now()
	record := &domain.InviteToken{
		ID:           s.genID.Generate(),
		EventID:      req.EventID,
		TokenHash:    HashToken(token),
		TicketTypeID: req.TicketTypeID,
		ExpiresAt:    now.Add(req.TTL),
		CreatedAt:    now,
	}
	if email := NormalizeEmail(req.Email); email != "" {
		record.EmailNormalized = &email
	}

	if err := s.repo.InsertInviteToken(ctx, s.db, record); err != nil {
		return "", err
	}
	s.log.Info("invite token issued",
		zap.Int64("event_id", req.EventID),
		zap.String("invite_id", record.ID.String()),
	)
	return token, nil
}

func (s *InviteService) Consume(ctx context.Context, tx *gorm.DB, req domain.ConsumeInviteRequest) error {
	token := strings.TrimSpace(req.Token)
	if token == "" {
		return domain.ErrInviteTokenInvalid
	}

	ok, err := s.repo.ConsumeInviteToken(ctx, tx, domain.ConsumeParams{
		TokenHash:        HashToken(token),
		EventID:          req.EventID,
		EmailNormalized:  NormalizeEmail(req.EmailNormalized),
		TicketTypeIDs:    req.TicketTypeIDs,
		UsedByIdentityID: req.UsedByIdentityID,
		Now:              s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInviteTokenInvalid
	}
	return nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
