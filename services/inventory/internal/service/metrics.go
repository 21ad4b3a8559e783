package service

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shestoi/storefront/services/inventory/internal/repository"
)

// Metrics счётчики и гистограммы операций ledger для /metrics
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics регистрирует метрики в reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inventory",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Stock ledger operations by outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "inventory",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Stock ledger operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.operations, m.duration)
	return m
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, repository.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrReservationReleased):
		return "conflict"
	default:
		return "error"
	}
}
