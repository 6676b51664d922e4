package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/railzway-checkout/internal/clock"
	eventdomain "github.com/smallbiznis/railzway-checkout/internal/eventlog/domain"
	"github.com/smallbiznis/railzway-checkout/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock `optional:"true"`
}

type Writer struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewWriter(p Params) eventdomain.Writer {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Writer{
		db:    p.DB,
		log:   p.Log.Named("eventlog.writer"),
		genID: p.GenID,
		clock: clk,
	}
}

func (w *Writer) Append(ctx context.Context, db *gorm.DB, req eventdomain.AppendRequest) (eventdomain.AppendResult, error) {
	if strings.TrimSpace(string(req.EventType)) == "" {
		return eventdomain.AppendResult{}, eventdomain.ErrInvalidEventType
	}
	if strings.TrimSpace(req.AggregateType) == "" || strings.TrimSpace(req.AggregateID) == "" {
		return eventdomain.AppendResult{}, eventdomain.ErrInvalidAggregate
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return eventdomain.AppendResult{}, eventdomain.ErrInvalidIdempotencyKey
	}
	if db == nil {
		db = w.db
	}

	correlationID := strings.TrimSpace(req.CorrelationID)
	if correlationID == "" {
		correlationID = correlation.ExtractCorrelationID(ctx)
	}
	if correlationID == "" {
		correlationID = req.IdempotencyKey
	}

	eventID := uuid.NewString()
	payload := make(map[string]any, len(req.Payload)+1)
	for k, v := range req.Payload {
		payload[k] = v
	}
	payload["eventLogId"] = eventID

	raw, err := json.Marshal(payload)
	if err != nil {
		return eventdomain.AppendResult{}, fmt.Errorf("marshal event payload: %w", err)
	}

	key := eventdomain.ScopedKey(req.EventType, req.IdempotencyKey)
	now := w.clock.Now()

	result := db.WithContext(ctx).Exec(
		`INSERT INTO event_log (
			id, event_type, aggregate_type, aggregate_id, organization_id,
			idempotency_key, correlation_id, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		eventID,
		string(req.EventType),
		req.AggregateType,
		req.AggregateID,
		req.OrganizationID,
		key,
		correlationID,
		datatypes.JSON(raw),
		now,
	)
	if result.Error != nil {
		return eventdomain.AppendResult{}, fmt.Errorf("insert event log: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		existing, err := w.findEventID(ctx, db, key)
		if err != nil {
			return eventdomain.AppendResult{}, err
		}
		w.log.Info("event already logged, skipping outbox",
			zap.String("event_type", string(req.EventType)),
			zap.String("event_id", existing),
			zap.String("aggregate_id", req.AggregateID),
		)
		return eventdomain.AppendResult{EventID: existing, Appended: false}, nil
	}

	err = db.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (
			id, event_id, event_type, aggregate_id, dedupe_key, correlation_id,
			payload, attempts, available_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		w.genID.Generate(),
		eventID,
		string(req.EventType),
		req.AggregateID,
		key,
		correlationID,
		datatypes.JSON(raw),
		now,
		now,
	).Error
	if err != nil {
		return eventdomain.AppendResult{}, fmt.Errorf("insert outbox event: %w", err)
	}

	return eventdomain.AppendResult{EventID: eventID, Appended: true}, nil
}

func (w *Writer) findEventID(ctx context.Context, db *gorm.DB, key string) (string, error) {
	var id string
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM event_log WHERE idempotency_key = ? LIMIT 1`,
		key,
	).Scan(&id).Error
	if err != nil {
		return "", fmt.Errorf("load event log: %w", err)
	}
	return id, nil
}
