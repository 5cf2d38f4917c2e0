// Package metric provides Prometheus metrics for vaultkv.
//
//   - prometheus.go: the registry, request/session instruments and the
//     /metrics handler
//   - collector.go: scrape-time gauges read from the store and limiter
//
// All Registry methods are safe on a nil receiver so components can run
// without metrics.
package metric
