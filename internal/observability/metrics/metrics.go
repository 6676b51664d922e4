package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes checkout-level instruments.
type Metrics struct {
	checkouts       metric.Int64Counter
	ledgerEntries   metric.Int64Counter
	outboxPublished metric.Int64Counter
	outboxFailed    metric.Int64Counter
}

const (
	OutcomeCreated  = "created"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
)

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "railzway-checkout"
	}
	meter := provider.Meter(name)

	checkouts, err := meter.Int64Counter("railzway_checkouts_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("railzway_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	outboxPublished, err := meter.Int64Counter("railzway_outbox_published_total")
	if err != nil {
		return nil, err
	}
	outboxFailed, err := meter.Int64Counter("railzway_outbox_failed_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		checkouts:       checkouts,
		ledgerEntries:   ledgerEntries,
		outboxPublished: outboxPublished,
		outboxFailed:    outboxFailed,
	}, nil
}

// RecordCheckout counts one checkout attempt by source type and outcome.
func (m *Metrics) RecordCheckout(ctx context.Context, sourceType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source_type", strings.TrimSpace(sourceType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.checkouts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntries counts ledger rows actually inserted.
func (m *Metrics) RecordLedgerEntries(ctx context.Context, sourceType string, inserted int) {
	if m == nil || inserted <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.ledgerEntries.Add(ctx, int64(inserted), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordOutboxPublished(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.outboxPublished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordOutboxFailed(ctx context.Context, eventType, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.outboxFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source_type": {},
	"outcome":     {},
	"event_type":  {},
	"reason":      {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
