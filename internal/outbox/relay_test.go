package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/railzway-checkout/internal/clock"
	"github.com/smallbiznis/railzway-checkout/internal/config"
	eventdomain "github.com/smallbiznis/railzway-checkout/internal/eventlog/domain"
	eventservice "github.com/smallbiznis/railzway-checkout/internal/eventlog/service"
	"github.com/smallbiznis/railzway-checkout/internal/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

type relayFixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	pub   *fakePublisher
	relay *Relay
}

func newRelayFixture(t *testing.T, maxAttempts int) relayFixture {
	t.Helper()
	db := testsupport.OpenDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	pub := &fakePublisher{}

	cfg := config.Config{
		Kafka:  config.KafkaConfig{TopicPrefix: "railzway"},
		Outbox: config.OutboxConfig{BatchSize: 10, MaxAttempts: maxAttempts},
	}
	relay := NewRelay(RelayParams{DB: db, Log: zap.NewNop(), Config: cfg, Publisher: pub, Clock: clk})

	writer := eventservice.NewWriter(eventservice.Params{DB: db, Log: zap.NewNop(), GenID: testsupport.NewNode(t), Clock: clk})
	_, err := writer.Append(context.Background(), db, eventdomain.AppendRequest{
		EventType:      eventdomain.EventPaymentCreated,
		AggregateType:  eventdomain.AggregatePayment,
		AggregateID:    "pay_1",
		OrganizationID: 3,
		IdempotencyKey: "key_1",
		CorrelationID:  "corr-1",
		Payload:        map[string]any{"paymentId": "pay_1"},
	})
	require.NoError(t, err)

	return relayFixture{db: db, clock: clk, pub: pub, relay: relay}
}

func TestProcessPendingPublishesAndMarks(t *testing.T) {
	f := newRelayFixture(t, 3)
	ctx := context.Background()

	n, err := f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, f.pub.messages, 1)
	msg := f.pub.messages[0]
	assert.Equal(t, "railzway.payment.created", msg.Topic)
	assert.Equal(t, "corr-1", msg.Key)
	assert.Equal(t, "corr-1", msg.Headers["correlation_id"])
	assert.Equal(t, "payment.created:key_1", msg.Headers["dedupe_key"])
	assert.Contains(t, string(msg.Value), `"paymentId":"pay_1"`)

	n, err = f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, f.pub.messages, 1)
	assert.Equal(t, int64(1), testsupport.Count(t, f.db, `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NOT NULL`))
}

func TestProcessPendingReschedulesOnFailure(t *testing.T) {
	f := newRelayFixture(t, 3)
	ctx := context.Background()
	f.pub.err = errors.New("broker down")

	n, err := f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var row struct {
		Attempts  int
		LastError *string
	}
	require.NoError(t, f.db.Raw(`SELECT attempts, last_error FROM outbox_events`).Scan(&row).Error)
	assert.Equal(t, 1, row.Attempts)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "broker down", *row.LastError)

	// not yet due
	n, err = f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(1), testsupport.Count(t, f.db, `SELECT attempts FROM outbox_events`))

	f.pub.err = nil
	f.clock.Advance(time.Minute)
	n, err = f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProcessPendingParksAfterMaxAttempts(t *testing.T) {
	f := newRelayFixture(t, 2)
	ctx := context.Background()
	f.pub.err = errors.New("rejected")

	_, err := f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.relay.ProcessPending(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), testsupport.Count(t, f.db, `SELECT COUNT(*) FROM outbox_events WHERE parked_at IS NOT NULL`))

	f.pub.err = nil
	f.clock.Advance(time.Hour)
	n, err := f.relay.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, f.pub.messages)
}

func TestTopicWithoutPrefix(t *testing.T) {
	r := &Relay{}
	assert.Equal(t, "payment.created", r.Topic("payment.created"))
}
