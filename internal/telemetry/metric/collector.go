package metric

import "github.com/prometheus/client_golang/prometheus"

// Stats is a point-in-time reading of component sizes.
type Stats struct {
	StoreEntries     int
	RateLimitBuckets int
}

// Collector reports Stats as gauges at scrape time.
type Collector struct {
	read    func() Stats
	entries *prometheus.Desc
	buckets *prometheus.Desc
}

// NewCollector creates a collector that calls read on every scrape.
func NewCollector(read func() Stats) *Collector {
	return &Collector{
		read: read,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "store", "entries"),
			"Number of entries in the store", nil, nil),
		buckets: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "ratelimit", "buckets"),
			"Number of tracked rate limit identities", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.buckets
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.read()
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.StoreEntries))
	ch <- prometheus.MustNewConstMetric(c.buckets, prometheus.GaugeValue, float64(s.RateLimitBuckets))
}
