package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	RelayPollReasonDeadlineExceeded     = "deadline_exceeded"
	RelayPollReasonDBLockTimeout        = "db_lock_timeout"
	RelayPollReasonSerializationFailure = "serialization_failure"
	RelayPollReasonUniqueViolation      = "unique_violation"
	RelayPollReasonUnknown              = "unknown"
)

// RelayMetrics captures outbox relay health on the prometheus registry.
type RelayMetrics struct {
	batchClaimed  prometheus.Histogram
	batchDuration prometheus.Histogram
	pollErrors    *prometheus.CounterVec
	publishLag    prometheus.Histogram
}

// NewRelayMetrics registers the relay collectors on registerer.
func NewRelayMetrics(registerer prometheus.Registerer, cfg Config) *RelayMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "railzway-checkout"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service":     serviceName,
		"environment": environment,
	}

	m := &RelayMetrics{
		batchClaimed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "railzway_outbox_batch_claimed",
			Help:        "Outbox rows claimed per relay poll.",
			ConstLabels: constLabels,
			Buckets:     []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "railzway_outbox_batch_duration_seconds",
			Help:        "Time spent processing one relay batch.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "railzway_outbox_poll_errors_total",
			Help:        "Relay polls that failed, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		publishLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "railzway_outbox_publish_lag_seconds",
			Help:        "Delay between outbox row creation and successful publish.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300, 900},
		}),
	}

	m.batchClaimed = registerHistogram(registerer, m.batchClaimed)
	m.batchDuration = registerHistogram(registerer, m.batchDuration)
	m.publishLag = registerHistogram(registerer, m.publishLag)
	if err := registerer.Register(m.pollErrors); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				m.pollErrors = existing
			}
		}
	}
	return m
}

func registerHistogram(registerer prometheus.Registerer, h prometheus.Histogram) prometheus.Histogram {
	if err := registerer.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing
			}
		}
	}
	return h
}

func (m *RelayMetrics) ObserveBatch(claimed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batchClaimed.Observe(float64(claimed))
	m.batchDuration.Observe(elapsed.Seconds())
}

func (m *RelayMetrics) ObservePublishLag(lag time.Duration) {
	if m == nil || lag < 0 {
		return
	}
	m.publishLag.Observe(lag.Seconds())
}

func (m *RelayMetrics) IncPollError(err error) {
	if m == nil || err == nil {
		return
	}
	m.pollErrors.WithLabelValues(ClassifyRelayPollError(err)).Inc()
}

// ClassifyRelayPollError maps a poll failure onto a bounded reason label.
func ClassifyRelayPollError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RelayPollReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return RelayPollReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return RelayPollReasonDBLockTimeout
		case "40001":
			return RelayPollReasonSerializationFailure
		case "23505":
			return RelayPollReasonUniqueViolation
		}
	}
	return RelayPollReasonUnknown
}
