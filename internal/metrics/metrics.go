// Package metrics exposes settlement counters for prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use through a nil pointer, in which case nothing is recorded.
type Metrics struct {
	webhooksTotal      *prometheus.CounterVec
	lockWaitSeconds    prometheus.Histogram
	lockTimeoutsTotal  prometheus.Counter
	submissionsTotal   *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	ledgerAppends      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		webhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cardsettle",
				Subsystem: "webhooks",
				Name:      "handled_total",
				Help:      "Issuer webhooks handled, by operation and response status.",
			},
			[]string{"operation", "status"},
		),
		lockWaitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "cardsettle",
				Subsystem: "lock",
				Name:      "wait_seconds",
				Help:      "Time spent waiting for an account lock.",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60},
			},
		),
		lockTimeoutsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cardsettle",
				Subsystem: "lock",
				Name:      "timeouts_total",
				Help:      "Account lock acquisitions that timed out.",
			},
		),
		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cardsettle",
				Subsystem: "keeper",
				Name:      "submissions_total",
				Help:      "Plugin calls submitted on chain, by function and result.",
			},
			[]string{"function", "result"},
		),
		validationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cardsettle",
				Subsystem: "validator",
				Name:      "failures_total",
				Help:      "Authorization simulations rejected, by reason.",
			},
			[]string{"reason"},
		),
		ledgerAppends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cardsettle",
				Subsystem: "ledger",
				Name:      "appends_total",
				Help:      "Ledger entries appended, by hash kind.",
			},
			[]string{"kind"},
		),
	}
}

func (m *Metrics) ObserveWebhook(operation string, status int) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitSeconds.Observe(d.Seconds())
}

func (m *Metrics) LockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeoutsTotal.Inc()
}

func (m *Metrics) ObserveSubmission(function string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.submissionsTotal.WithLabelValues(function, result).Inc()
}

func (m *Metrics) ValidationFailure(reason string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(reason).Inc()
}

// LedgerAppend counts an append; sentinel is true when no chain transaction was recorded.
func (m *Metrics) LedgerAppend(sentinel bool) {
	if m == nil {
		return
	}
	kind := "onchain"
	if sentinel {
		kind = "sentinel"
	}
	m.ledgerAppends.WithLabelValues(kind).Inc()
}
