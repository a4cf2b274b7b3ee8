// Package metrics provides the engine's lock-free counters and validate
// latency histogram.
//
// Counters live in cache-line padded uint64 slots updated with sync/atomic.
// The histogram has 8 fixed buckets. Export to Prometheus or OpenTelemetry
// lives in metrics/export and reads Snapshot values only.
package metrics
