// Package prometheus exposes engine counters and the session validation
// latency histogram to Prometheus.
//
// [PrometheusExporter] can be mounted directly through [PrometheusExporter.Handler]
// or registered as a prometheus.Collector on a client_golang registry and
// served with promhttp. Counter names follow zen_*_total; the histogram is
// zen_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
