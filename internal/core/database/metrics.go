package database

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhenhaojia/house/internal/core/pool"
)

// Metrics records statement outcomes. A nil *Metrics records nothing.
type Metrics struct {
	QueryDuration *prometheus.HistogramVec
	SlowQueries   prometheus.Counter
	Transactions  *prometheus.CounterVec
}

// NewMetrics creates the statement metrics and registers them with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Statement latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		SlowQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_slow_queries_total",
			Help:      "Statements slower than the slow query threshold.",
		}),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_transactions_total",
			Help:      "Finished transactions by outcome.",
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.QueryDuration, m.SlowQueries, m.Transactions)
	}
	return m
}

func (m *Metrics) observe(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(outcome(err)).Observe(d.Seconds())
}

func (m *Metrics) slow() {
	if m == nil {
		return
	}
	m.SlowQueries.Inc()
}

func (m *Metrics) transaction(result string) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(result).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, pool.ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, pool.ErrPoolClosed):
		return "pool_closed"
	case errors.Is(err, pool.ErrConnectionLost):
		return "connection_lost"
	case errors.Is(err, ErrPlaceholderMismatch):
		return "invalid"
	default:
		return "query_failure"
	}
}
