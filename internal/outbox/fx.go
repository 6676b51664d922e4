package outbox

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/railzway-checkout/internal/config"
	obsmetrics "github.com/smallbiznis/railzway-checkout/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("outbox.relay",
	fx.Provide(
		NewKafkaPublisher,
		func(p *KafkaPublisher) Publisher { return p },
	),
	fx.Provide(func(cfg obsmetrics.Config) *obsmetrics.RelayMetrics {
		return obsmetrics.NewRelayMetrics(prometheus.DefaultRegisterer, cfg)
	}),
	fx.Provide(NewRelay),
	fx.Invoke(runRelay),
	fx.Invoke(serveMetrics),
)

func runRelay(lc fx.Lifecycle, relay *Relay, publisher *KafkaPublisher) {
	var cancel context.CancelFunc
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go func() {
				defer close(done)
				relay.Run(ctx)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
				select {
				case <-done:
				case <-ctx.Done():
				}
			}
			return publisher.Close()
		},
	})
}

func serveMetrics(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) {
	addr := cfg.Outbox.MetricsAddr
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("relay metrics server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
