package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/railzway-checkout/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyCheckoutInFlight = "checkout:inflight:%s"

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled() {
		log.Info("redis disabled, checkout in-flight lock off")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// CheckoutLock serializes concurrent checkouts sharing an idempotency key.
type CheckoutLock struct {
	locker *Locker
	ttl    time.Duration
}

func NewCheckoutLock(cfg config.Config, client *redis.Client) *CheckoutLock {
	if client == nil {
		return nil
	}
	ttl := cfg.CheckoutLockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &CheckoutLock{locker: NewLocker(client), ttl: ttl}
}

func (l *CheckoutLock) Enabled() bool {
	return l != nil && l.locker != nil
}

// Acquire returns a release func when the lease was taken.
func (l *CheckoutLock) Acquire(ctx context.Context, idempotencyKey string) (func(), bool, error) {
	if !l.Enabled() {
		return func() {}, true, nil
	}

	key := fmt.Sprintf(keyCheckoutInFlight, strings.TrimSpace(idempotencyKey))
	token, ok, err := l.locker.TryLock(ctx, key, l.ttl)
	if err != nil || !ok {
		return func() {}, false, err
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.locker.Release(releaseCtx, key, token)
	}
	return release, true, nil
}
