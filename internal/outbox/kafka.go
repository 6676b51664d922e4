package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/railzway-checkout/internal/config"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes outbox messages to Kafka with bounded retries.
type KafkaPublisher struct {
	writer messageWriter
	retry  RetryConfig
	log    *zap.Logger
}

func NewKafkaPublisher(cfg config.Config, log *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(writer, RetryConfig{MaxAttempts: 3, Jitter: true}, log)
}

func newKafkaPublisher(writer messageWriter, retry RetryConfig, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: writer,
		retry:  retry.withDefaults(),
		log:    log.Named("outbox.kafka"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	km := kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers,
		Time:    time.Now().UTC(),
	}

	var lastErr error
	for attempt := 0; attempt < p.retry.MaxAttempts; attempt++ {
		err := p.writer.WriteMessages(ctx, km)
		if err == nil {
			if attempt > 0 {
				p.log.Info("message published after retry",
					zap.String("topic", msg.Topic),
					zap.Int("attempts", attempt+1),
				)
			}
			return nil
		}
		lastErr = err

		if attempt == p.retry.MaxAttempts-1 {
			break
		}

		delay := p.retry.Backoff(attempt)
		p.log.Warn("publish failed, retrying",
			zap.String("topic", msg.Topic),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("publish to %s cancelled: %w", msg.Topic, ctx.Err())
		}
	}

	return fmt.Errorf("publish to %s after %d attempts: %w", msg.Topic, p.retry.MaxAttempts, lastErr)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
