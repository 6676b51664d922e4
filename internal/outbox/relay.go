package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/railzway-checkout/internal/clock"
	"github.com/smallbiznis/railzway-checkout/internal/config"
	obsmetrics "github.com/smallbiznis/railzway-checkout/internal/observability/metrics"
	"github.com/smallbiznis/railzway-checkout/pkg/db"
	"github.com/smallbiznis/railzway-checkout/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxErrorLength = 1024

type RelayParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Publisher  Publisher
	Clock      clock.Clock              `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
	Relay      *obsmetrics.RelayMetrics `optional:"true"`
}

// Relay forwards unpublished outbox rows to the event bus.
type Relay struct {
	db          *gorm.DB
	log         *zap.Logger
	publisher   Publisher
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
	relayStats  *obsmetrics.RelayMetrics
	topicPrefix string
	batchSize   int
	maxAttempts int
	interval    time.Duration
	retry       RetryConfig
}

func NewRelay(p RelayParams) *Relay {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}

	batch := p.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = 100
	}
	maxAttempts := p.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	interval := p.Config.Outbox.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	return &Relay{
		db:          p.DB,
		log:         p.Log.Named("outbox.relay"),
		publisher:   p.Publisher,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
		relayStats:  p.Relay,
		topicPrefix: strings.TrimSpace(p.Config.Kafka.TopicPrefix),
		batchSize:   batch,
		maxAttempts: maxAttempts,
		interval:    interval,
		retry:       RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Minute},
	}
}

type pendingRow struct {
	ID            snowflake.ID   `gorm:"column:id"`
	EventID       string         `gorm:"column:event_id"`
	EventType     string         `gorm:"column:event_type"`
	AggregateID   string         `gorm:"column:aggregate_id"`
	DedupeKey     string         `gorm:"column:dedupe_key"`
	CorrelationID string         `gorm:"column:correlation_id"`
	Payload       datatypes.JSON `gorm:"column:payload"`
	Attempts      int            `gorm:"column:attempts"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
}

// Topic maps an event type to its bus topic.
func (r *Relay) Topic(eventType string) string {
	if r.topicPrefix == "" {
		return eventType
	}
	return r.topicPrefix + "." + eventType
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			r.relayStats.IncPollError(err)
			r.log.Error("outbox poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessPending publishes one batch of due rows and returns how many were
// published.
func (r *Relay) ProcessPending(ctx context.Context) (int, error) {
	start := time.Now()
	published, claimed := 0, 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := r.claim(ctx, tx)
		if err != nil {
			return err
		}
		claimed = len(rows)
		for _, row := range rows {
			ok, err := r.deliver(ctx, tx, row)
			if err != nil {
				return err
			}
			if ok {
				published++
			}
		}
		return nil
	})
	if err == nil {
		r.relayStats.ObserveBatch(claimed, time.Since(start))
	}
	return published, err
}

func (r *Relay) claim(ctx context.Context, tx *gorm.DB) ([]pendingRow, error) {
	query := `SELECT id, event_id, event_type, aggregate_id, dedupe_key, correlation_id, payload, attempts, created_at
		FROM outbox_events
		WHERE published_at IS NULL AND parked_at IS NULL AND available_at <= ?
		ORDER BY id ASC
		LIMIT ?`
	if db.IsPostgres(tx) {
		query += ` FOR UPDATE SKIP LOCKED`
	}

	var rows []pendingRow
	if err := tx.WithContext(ctx).Raw(query, r.clock.Now(), r.batchSize).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	return rows, nil
}

// deliver publishes a single row. Publish failures are recorded on the row
// and do not abort the batch.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row pendingRow) (bool, error) {
	msgCtx := correlation.ContextWithCorrelationID(ctx, row.CorrelationID)
	headers := correlation.Headers(msgCtx)
	headers["event_id"] = row.EventID
	headers["event_type"] = row.EventType
	headers["dedupe_key"] = row.DedupeKey

	key := row.CorrelationID
	if key == "" {
		key = row.AggregateID
	}

	pubErr := r.publisher.Publish(msgCtx, Message{
		Topic:   r.Topic(row.EventType),
		Key:     key,
		Value:   []byte(row.Payload),
		Headers: headers,
	})

	now := r.clock.Now()
	if pubErr == nil {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE outbox_events SET published_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`,
			now,
			row.ID,
		).Error; err != nil {
			return false, fmt.Errorf("mark outbox published: %w", err)
		}
		r.obsMetrics.RecordOutboxPublished(ctx, row.EventType)
		r.relayStats.ObservePublishLag(now.Sub(row.CreatedAt))
		return true, nil
	}

	attempts := row.Attempts + 1
	lastErr := truncate(pubErr.Error(), maxErrorLength)

	if attempts >= r.maxAttempts {
		if err := tx.WithContext(ctx).Exec(
			`UPDATE outbox_events SET attempts = ?, last_error = ?, parked_at = ? WHERE id = ?`,
			attempts,
			lastErr,
			now,
			row.ID,
		).Error; err != nil {
			return false, fmt.Errorf("park outbox row: %w", err)
		}
		r.obsMetrics.RecordOutboxFailed(ctx, row.EventType, "parked")
		r.log.Error("outbox row parked",
			zap.String("event_id", row.EventID),
			zap.String("event_type", row.EventType),
			zap.Int("attempts", attempts),
			zap.Error(pubErr),
		)
		return false, nil
	}

	nextAt := now.Add(r.retry.Backoff(row.Attempts))
	if err := tx.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = ?, last_error = ?, available_at = ? WHERE id = ?`,
		attempts,
		lastErr,
		nextAt,
		row.ID,
	).Error; err != nil {
		return false, fmt.Errorf("reschedule outbox row: %w", err)
	}
	r.obsMetrics.RecordOutboxFailed(ctx, row.EventType, "retry")
	r.log.Warn("outbox publish failed",
		zap.String("event_id", row.EventID),
		zap.String("event_type", row.EventType),
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", nextAt),
		zap.Error(pubErr),
	)
	return false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
