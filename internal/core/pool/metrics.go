package pool

import "github.com/prometheus/client_golang/prometheus"

// Collector exports pool accounting as Prometheus metrics. Values are read
// from Stat at scrape time.
type Collector struct {
	pool *Pool

	total     *prometheus.Desc
	idle      *prometheus.Desc
	acquired  *prometheus.Desc
	max       *prometheus.Desc
	acquires  *prometheus.Desc
	exhausted *prometheus.Desc
	discarded *prometheus.Desc
}

// NewCollector creates a collector for p under the given namespace.
func NewCollector(p *Pool, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, nil)
	}
	return &Collector{
		pool:      p,
		total:     desc("connections", "Open connections, idle and acquired."),
		idle:      desc("idle_connections", "Idle connections."),
		acquired:  desc("acquired_connections", "Connections currently checked out."),
		max:       desc("max_connections", "Configured connection limit."),
		acquires:  desc("acquires_total", "Successful acquires."),
		exhausted: desc("exhausted_total", "Acquires that timed out waiting for a connection."),
		discarded: desc("discarded_total", "Connections dropped because they broke."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.acquired
	ch <- c.max
	ch <- c.acquires
	ch <- c.exhausted
	ch <- c.discarded
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.Total))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.Acquired))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.Max))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(s.Acquires))
	ch <- prometheus.MustNewConstMetric(c.exhausted, prometheus.CounterValue, float64(s.Exhausted))
	ch <- prometheus.MustNewConstMetric(c.discarded, prometheus.CounterValue, float64(s.Discarded))
}
