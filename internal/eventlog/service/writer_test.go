package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/railzway-checkout/internal/clock"
	eventdomain "github.com/smallbiznis/railzway-checkout/internal/eventlog/domain"
	"github.com/smallbiznis/railzway-checkout/internal/testsupport"
	"github.com/smallbiznis/railzway-checkout/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newWriter(t *testing.T) (eventdomain.Writer, *gorm.DB) {
	t.Helper()
	db := testsupport.OpenDB(t)
	w := NewWriter(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testsupport.NewNode(t),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	})
	return w, db
}

func paymentCreated(key string) eventdomain.AppendRequest {
	eventID := int64(77)
	return eventdomain.AppendRequest{
		EventType:      eventdomain.EventPaymentCreated,
		AggregateType:  eventdomain.AggregatePayment,
		AggregateID:    "pay_1",
		OrganizationID: 9,
		IdempotencyKey: key,
		Payload: eventdomain.PaymentCreatedPayload{
			PaymentID:        "pay_1",
			EventID:          &eventID,
			Status:           "CREATED",
			AmountCents:      1_100,
			PlatformFeeCents: 100,
			GrossCents:       1_000,
			NetToOrgCents:    900,
			Currency:         "USD",
			OrganizationID:   "9",
			SourceType:       "TICKET_ORDER",
			SourceID:         "ord_1",
		}.ToMap(),
	}
}

func TestAppendWritesEventAndOutbox(t *testing.T) {
	ctx := correlation.ContextWithCorrelationID(context.Background(), "corr-1")
	w, db := newWriter(t)

	res, err := w.Append(ctx, db, paymentCreated("key_1"))
	require.NoError(t, err)
	assert.True(t, res.Appended)
	assert.NotEmpty(t, res.EventID)

	var outbox eventdomain.OutboxRecord
	require.NoError(t, db.Raw(`SELECT * FROM outbox_events`).Scan(&outbox).Error)
	assert.Equal(t, res.EventID, outbox.EventID)
	assert.Equal(t, "payment.created:key_1", outbox.DedupeKey)
	assert.Equal(t, "corr-1", outbox.CorrelationID)
	assert.Nil(t, outbox.PublishedAt)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(outbox.Payload, &payload))
	assert.Equal(t, res.EventID, payload["eventLogId"])
	assert.Equal(t, "pay_1", payload["paymentId"])
	assert.EqualValues(t, 77, payload["eventId"])
	assert.EqualValues(t, 900, payload["netToOrgCents"])
}

func TestAppendSkipsOutboxWhenEventExists(t *testing.T) {
	ctx := context.Background()
	w, db := newWriter(t)

	first, err := w.Append(ctx, db, paymentCreated("key_1"))
	require.NoError(t, err)

	second, err := w.Append(ctx, db, paymentCreated("key_1"))
	require.NoError(t, err)
	assert.False(t, second.Appended)
	assert.Equal(t, first.EventID, second.EventID)

	assert.Equal(t, int64(1), testsupport.Count(t, db, `SELECT COUNT(*) FROM event_log`))
	assert.Equal(t, int64(1), testsupport.Count(t, db, `SELECT COUNT(*) FROM outbox_events`))
}

func TestAppendDefaultsCorrelationToIdempotencyKey(t *testing.T) {
	w, db := newWriter(t)

	_, err := w.Append(context.Background(), db, paymentCreated("key_9"))
	require.NoError(t, err)

	var cid string
	require.NoError(t, db.Raw(`SELECT correlation_id FROM event_log`).Scan(&cid).Error)
	assert.Equal(t, "key_9", cid)
}

func TestAppendValidation(t *testing.T) {
	w, db := newWriter(t)
	ctx := context.Background()

	req := paymentCreated("")
	_, err := w.Append(ctx, db, req)
	assert.ErrorIs(t, err, eventdomain.ErrInvalidIdempotencyKey)

	req = paymentCreated("k")
	req.AggregateID = ""
	_, err = w.Append(ctx, db, req)
	assert.ErrorIs(t, err, eventdomain.ErrInvalidAggregate)

	req = paymentCreated("k")
	req.EventType = ""
	_, err = w.Append(ctx, db, req)
	assert.ErrorIs(t, err, eventdomain.ErrInvalidEventType)
}
