// Package otel binds engine metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter.
// Latency histograms become a "_bucket" gauge with one point per "le" bound
// plus a "_count" counter. One callback reads Engine.MetricsSnapshot on each
// collection cycle; [WithAttributes] tags every point.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
