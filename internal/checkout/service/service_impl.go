package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	accessservice "github.com/smallbiznis/railzway-checkout/internal/access/service"
	checkoutdomain "github.com/smallbiznis/railzway-checkout/internal/checkout/domain"
	"github.com/smallbiznis/railzway-checkout/internal/clock"
	"github.com/smallbiznis/railzway-checkout/internal/config"
	eventdomain "github.com/smallbiznis/railzway-checkout/internal/eventlog/domain"
	ledgerdomain "github.com/smallbiznis/railzway-checkout/internal/ledger/domain"
	"github.com/smallbiznis/railzway-checkout/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/railzway-checkout/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/railzway-checkout/internal/payment/domain"
	"github.com/smallbiznis/railzway-checkout/internal/pricing"
	pricingdomain "github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const lockPollInterval = 25 * time.Millisecond

type PricingResolver interface {
	Resolve(ctx context.Context, sourceType pricingdomain.SourceType, sourceID string) (*pricingdomain.ResolvedSnapshot, error)
}

type AccessGate interface {
	Check(ctx context.Context, tx *gorm.DB, req accessservice.CheckRequest) error
}

// InFlightLock narrows the window where two requests with the same key both
// reach the insert. The unique index on idempotency_key stays authoritative.
type InFlightLock interface {
	Acquire(ctx context.Context, idempotencyKey string) (release func(), acquired bool, err error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Payments   paymentdomain.Repository
	Pricing    PricingResolver
	Gate       AccessGate
	Ledger     ledgerdomain.Service
	Events     eventdomain.Writer
	Lock       InFlightLock        `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	payments   paymentdomain.Repository
	pricing    PricingResolver
	gate       AccessGate
	ledger     ledgerdomain.Service
	events     eventdomain.Writer
	lock       InFlightLock
	lockWait   time.Duration
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkout.service"),
		payments:   p.Payments,
		pricing:    p.Pricing,
		gate:       p.Gate,
		ledger:     p.Ledger,
		events:     p.Events,
		lock:       p.Lock,
		lockWait:   p.Config.CheckoutLockWait,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateCheckout turns a purchasable source into one payment with its ledger
// entries and payment.created event. Repeating a call with the same
// idempotency key returns the original payment.
func (s *Service) CreateCheckout(ctx context.Context, in checkoutdomain.CreateCheckoutInput) (out *checkoutdomain.CreateCheckoutOutput, err error) {
	sourceType := pricingdomain.ParseSourceType(string(in.SourceType))

	ctx, span := otel.Tracer("railzway-checkout/checkout").Start(ctx, "checkout.create")
	span.SetAttributes(attribute.String("checkout.source_type", string(sourceType)))
	defer func() {
		outcome := obsmetrics.OutcomeCreated
		switch {
		case err != nil:
			outcome = obsmetrics.OutcomeRejected
			span.RecordError(err)
			span.SetStatus(codes.Error, checkoutdomain.ErrorCode(err))
		case out != nil && out.Replayed:
			outcome = obsmetrics.OutcomeReplayed
		}
		if out != nil {
			span.SetAttributes(
				attribute.String("checkout.payment_id", out.PaymentID),
				attribute.Bool("checkout.replayed", out.Replayed),
			)
		}
		s.obsMetrics.RecordCheckout(ctx, string(sourceType), outcome)
		span.End()
	}()

	if err := pricingdomain.EnsureCheckoutAllowed(sourceType); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		return nil, checkoutdomain.ErrIdempotencyKeyRequired
	}
	requestedID := trimmed(in.PaymentID)
	log := logger.WithContext(ctx, s.log).With(
		zap.String("idempotency_key", key),
		zap.String("source_type", string(sourceType)),
	)

	if out, ok, err := s.replay(ctx, log, in, key, requestedID); err != nil || ok {
		return out, err
	}

	if s.lock != nil {
		release, acquired, lockErr := s.lock.Acquire(ctx, key)
		if lockErr != nil {
			log.Warn("checkout lock unavailable", zap.Error(lockErr))
		}
		if release != nil {
			defer release()
		}
		if lockErr == nil && !acquired {
			existing, err := s.awaitWinner(ctx, key)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				log.Info("checkout replayed after concurrent create", zap.String("payment_id", existing.ID))
				return s.settle(ctx, log, existing, in)
			}
		}
	}

	resolved, err := s.resolve(ctx, sourceType, in)
	if err != nil {
		return nil, err
	}
	snapshot := resolved.Snapshot

	hash, err := pricing.HashSnapshot(snapshot)
	if err != nil {
		return nil, fmt.Errorf("hash pricing snapshot: %w", err)
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal pricing snapshot: %w", err)
	}

	paymentID := requestedID
	if paymentID == "" {
		paymentID = uuid.NewString()
	}

	customerID := trimmed(in.BuyerIdentityRef)
	if customerID == "" {
		customerID = trimmed(resolved.BuyerIdentityID)
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:                  paymentID,
		OrganizationID:      resolved.OrganizationID,
		SourceType:          string(snapshot.SourceType),
		SourceID:            snapshot.SourceID,
		CustomerIdentityID:  optional(customerID),
		Status:              paymentdomain.StatusCreated,
		Currency:            snapshot.Currency,
		TotalCents:          snapshot.Total,
		FeePolicyVersion:    snapshot.FeePolicyVersion,
		PricingSnapshot:     datatypes.JSON(raw),
		PricingSnapshotHash: &hash,
		IdempotencyKey:      key,
		ProcessorFeesStatus: string(pricingdomain.ProcessorFeesPending),
		ProcessorFeesActual: nil,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if sourceType == pricingdomain.SourceTypeTicketOrder && !in.SkipAccessChecks {
			if err := s.gate.Check(ctx, tx, accessservice.CheckRequest{
				EventID:          resolved.EventID,
				TicketTypeIDs:    resolved.TicketTypeIDs,
				BuyerIdentityRef: in.BuyerIdentityRef,
				InviteToken:      in.InviteToken,
			}); err != nil {
				return err
			}
		}

		if err := s.payments.Insert(ctx, tx, payment); err != nil {
			return err
		}

		if _, err := s.ledger.EnsurePaymentEntries(ctx, tx, ledgerInput(payment, snapshot)); err != nil {
			return fmt.Errorf("write ledger entries: %w", err)
		}

		if _, err := s.events.Append(ctx, tx, eventdomain.AppendRequest{
			EventType:      eventdomain.EventPaymentCreated,
			AggregateType:  eventdomain.AggregatePayment,
			AggregateID:    payment.ID,
			OrganizationID: payment.OrganizationID,
			IdempotencyKey: key,
			Payload:        paymentCreatedPayload(payment, resolved).ToMap(),
		}); err != nil {
			return fmt.Errorf("append payment event: %w", err)
		}
		return nil
	})

	if errors.Is(err, paymentdomain.ErrPaymentConflict) {
		return s.recoverConflict(ctx, log, in, key, paymentID)
	}
	if err != nil {
		if !checkoutdomain.IsClientError(err) {
			log.Error("checkout transaction failed", zap.Error(err))
		}
		return nil, err
	}

	log.Info("checkout created", zap.String("payment_id", payment.ID))
	return &checkoutdomain.CreateCheckoutOutput{
		PaymentID:           payment.ID,
		Status:              payment.Status,
		PricingSnapshotHash: &hash,
	}, nil
}

// replay resolves an existing payment by id first, then by key.
func (s *Service) replay(ctx context.Context, log *zap.Logger, in checkoutdomain.CreateCheckoutInput, key, requestedID string) (*checkoutdomain.CreateCheckoutOutput, bool, error) {
	if requestedID != "" {
		existing, err := s.payments.FindByID(ctx, s.db, requestedID)
		if err != nil {
			return nil, false, fmt.Errorf("load payment by id: %w", err)
		}
		if existing != nil {
			if existing.IdempotencyKey != key {
				log.Warn("payment id reused with a different idempotency key",
					zap.String("payment_id", existing.ID),
					zap.String("existing_idempotency_key", existing.IdempotencyKey),
				)
			}
			out, err := s.settle(ctx, log, existing, in)
			return out, true, err
		}
	}

	existing, err := s.payments.FindByIdempotencyKey(ctx, s.db, key)
	if err != nil {
		return nil, false, fmt.Errorf("load payment by idempotency key: %w", err)
	}
	if existing == nil {
		return nil, false, nil
	}
	if requestedID != "" && existing.ID != requestedID {
		log.Warn("idempotency key already bound to another payment id",
			zap.String("payment_id", existing.ID),
			zap.String("requested_payment_id", requestedID),
		)
	}
	out, err := s.settle(ctx, log, existing, in)
	return out, true, err
}

func (s *Service) recoverConflict(ctx context.Context, log *zap.Logger, in checkoutdomain.CreateCheckoutInput, key, paymentID string) (*checkoutdomain.CreateCheckoutOutput, error) {
	existing, err := s.payments.FindByIdempotencyKey(ctx, s.db, key)
	if err != nil {
		return nil, fmt.Errorf("load payment after conflict: %w", err)
	}
	if existing == nil {
		existing, err = s.payments.FindByID(ctx, s.db, paymentID)
		if err != nil {
			return nil, fmt.Errorf("load payment after conflict: %w", err)
		}
		if existing != nil {
			log.Warn("payment id taken by another idempotency key",
				zap.String("payment_id", existing.ID),
				zap.String("existing_idempotency_key", existing.IdempotencyKey),
			)
		}
	}
	if existing == nil {
		return nil, fmt.Errorf("payment conflict without visible row for key %q: %w", key, paymentdomain.ErrPaymentConflict)
	}

	log.Info("checkout replayed after insert conflict", zap.String("payment_id", existing.ID))
	return s.settle(ctx, log, existing, in)
}

// settle backfills ledger entries for an existing payment and renders it.
func (s *Service) settle(ctx context.Context, log *zap.Logger, existing *paymentdomain.Payment, in checkoutdomain.CreateCheckoutInput) (*checkoutdomain.CreateCheckoutOutput, error) {
	var snapshot pricingdomain.PricingSnapshot
	if err := json.Unmarshal(existing.PricingSnapshot, &snapshot); err != nil {
		return nil, fmt.Errorf("decode stored pricing snapshot: %w", err)
	}

	inserted, err := s.ledger.EnsurePaymentEntries(ctx, s.db, ledgerInput(existing, snapshot))
	if err != nil {
		return nil, fmt.Errorf("backfill ledger entries: %w", err)
	}
	if inserted > 0 {
		log.Info("ledger entries backfilled",
			zap.String("payment_id", existing.ID),
			zap.Int("inserted", inserted),
		)
	}

	hash := existing.PricingSnapshotHash
	if hash == nil {
		hash = optional(trimmed(in.PricingSnapshotHash))
	}
	return &checkoutdomain.CreateCheckoutOutput{
		PaymentID:           existing.ID,
		Status:              existing.Status,
		PricingSnapshotHash: hash,
		Replayed:            true,
	}, nil
}

func (s *Service) resolve(ctx context.Context, sourceType pricingdomain.SourceType, in checkoutdomain.CreateCheckoutInput) (*pricingdomain.ResolvedSnapshot, error) {
	resolved := in.ResolvedSnapshot
	if resolved == nil {
		var err error
		resolved, err = s.pricing.Resolve(ctx, sourceType, strings.TrimSpace(in.SourceID))
		if err != nil {
			return nil, err
		}
		if resolved == nil {
			return nil, pricingdomain.ErrSourceNotFound
		}
	}

	if pricingdomain.ParseSourceType(string(resolved.Snapshot.SourceType)) != sourceType {
		return nil, checkoutdomain.ErrSourceTypeMismatch
	}
	if strings.TrimSpace(resolved.Snapshot.SourceID) == "" {
		return nil, checkoutdomain.ErrSourceIDRequired
	}
	if err := resolved.Snapshot.Validate(); err != nil {
		return nil, err
	}
	return resolved, nil
}

// awaitWinner polls for the payment created by the lock holder.
func (s *Service) awaitWinner(ctx context.Context, key string) (*paymentdomain.Payment, error) {
	deadline := time.Now().Add(s.lockWait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		existing, err := s.payments.FindByIdempotencyKey(ctx, s.db, key)
		if err != nil {
			return nil, fmt.Errorf("load payment while waiting: %w", err)
		}
		if existing != nil || !time.Now().Before(deadline) {
			return existing, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func ledgerInput(p *paymentdomain.Payment, snapshot pricingdomain.PricingSnapshot) ledgerdomain.PaymentEntriesInput {
	currency := snapshot.Currency
	if currency == "" {
		currency = p.Currency
	}
	return ledgerdomain.PaymentEntriesInput{
		PaymentID:      p.ID,
		IdempotencyKey: p.IdempotencyKey,
		Currency:       currency,
		SourceType:     string(snapshot.SourceType),
		SourceID:       snapshot.SourceID,
		Gross:          snapshot.Gross,
		PlatformFee:    snapshot.PlatformFee,
	}
}

func paymentCreatedPayload(p *paymentdomain.Payment, resolved *pricingdomain.ResolvedSnapshot) eventdomain.PaymentCreatedPayload {
	snapshot := resolved.Snapshot
	return eventdomain.PaymentCreatedPayload{
		PaymentID:        p.ID,
		EventID:          resolved.EventID,
		Status:           string(p.Status),
		AmountCents:      snapshot.Total,
		PlatformFeeCents: snapshot.PlatformFee,
		GrossCents:       snapshot.Gross,
		NetToOrgCents:    snapshot.NetToOrgPending,
		Currency:         snapshot.Currency,
		OrganizationID:   p.OrganizationID.String(),
		SourceType:       string(snapshot.SourceType),
		SourceID:         snapshot.SourceID,
	}
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
