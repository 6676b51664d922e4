package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/railzway-checkout/internal/clock"
	ledgerdomain "github.com/smallbiznis/railzway-checkout/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/railzway-checkout/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) EnsurePaymentEntries(ctx context.Context, db *gorm.DB, in ledgerdomain.PaymentEntriesInput) (int, error) {
	entries, err := ledgerdomain.PaymentEntries(in)
	if err != nil {
		return 0, err
	}
	if db == nil {
		db = s.db
	}

	now := s.clock.Now()
	inserted := 0
	for _, entry := range entries {
		result := db.WithContext(ctx).Exec(
			`INSERT INTO ledger_entries (
				id, payment_id, entry_type, amount, currency, source_type, source_id,
				causation_id, correlation_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (causation_id) DO NOTHING`,
			s.genID.Generate(),
			entry.PaymentID,
			string(entry.EntryType),
			entry.Amount,
			entry.Currency,
			entry.SourceType,
			entry.SourceID,
			entry.CausationID,
			entry.CorrelationID,
			now,
		)
		if result.Error != nil {
			return inserted, result.Error
		}
		inserted += int(result.RowsAffected)
	}

	if inserted > 0 {
		s.obsMetrics.RecordLedgerEntries(ctx, in.SourceType, inserted)
	}
	return inserted, nil
}

func (s *Service) ListByPayment(ctx context.Context, paymentID string) ([]ledgerdomain.LedgerEntry, error) {
	var entries []ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, payment_id, entry_type, amount, currency, source_type, source_id,
			causation_id, correlation_id, created_at
		 FROM ledger_entries
		 WHERE payment_id = ?
		 ORDER BY id ASC`,
		paymentID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) PaymentBalance(ctx context.Context, paymentID string) (ledgerdomain.Balance, error) {
	entries, err := s.ListByPayment(ctx, paymentID)
	if err != nil {
		return ledgerdomain.Balance{}, err
	}

	balance := ledgerdomain.Balance{PaymentID: paymentID, Entries: len(entries)}
	for _, entry := range entries {
		if balance.Currency == "" {
			balance.Currency = entry.Currency
		} else if balance.Currency != entry.Currency {
			s.log.Warn("mixed currency ledger for payment",
				zap.String("payment_id", paymentID),
				zap.String("currency", balance.Currency),
				zap.String("other_currency", entry.Currency),
			)
		}
		balance.Amount += entry.Amount
	}
	return balance, nil
}

