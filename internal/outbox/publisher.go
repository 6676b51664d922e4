package outbox

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Message is one outbox row rendered for the event bus.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// Backoff returns the exponential delay for a zero-based attempt, capped at
// MaxDelay. Jitter spreads the delay by +/-15%.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	if attempt < 0 {
		attempt = 0
	}

	delay := time.Duration(math.Pow(2, float64(attempt))) * c.BaseDelay
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}

	if c.Jitter {
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.3)
		delay = delay + jitter - time.Duration(float64(delay)*0.15)
	}
	return delay
}
