package infra

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors.
type Metrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	walletRequests    *prometheus.CounterVec
	walletDuration    *prometheus.HistogramVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	outboxPublished   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Settlement operations by provider, operation and result code",
			},
			[]string{"provider", "operation", "code"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "settlement",
				Name:      "operation_duration_seconds",
				Help:      "Duration of settlement operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		walletRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "wallet",
				Name:      "requests_total",
				Help:      "Wallet calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		walletDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "wallet",
				Name:      "request_duration_seconds",
				Help:      "Duration of wallet calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gateway",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		outboxPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Subsystem: "outbox",
				Name:      "published_total",
				Help:      "Outbox events published to Kafka",
			},
		),
	}

	reg.MustRegister(
		m.operations,
		m.operationDuration,
		m.walletRequests,
		m.walletDuration,
		m.httpRequests,
		m.httpDuration,
		m.outboxPublished,
	)
	return m
}

// ObserveOperation records one settlement operation outcome.
func (m *Metrics) ObserveOperation(provider, operation, code string, d time.Duration) {
	m.operations.WithLabelValues(provider, operation, code).Inc()
	m.operationDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// ObserveWallet records one wallet call.
func (m *Metrics) ObserveWallet(operation, outcome string, d time.Duration) {
	m.walletRequests.WithLabelValues(operation, outcome).Inc()
	m.walletDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObservePublished counts events relayed by the outbox poller.
func (m *Metrics) ObservePublished(n int) {
	m.outboxPublished.Add(float64(n))
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
