// Package otel binds authguard metrics to OpenTelemetry observable
// instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter
// and one Int64ObservableGauge per histogram bucket. A single callback reads
// [authguard.Engine.MetricsSnapshot] on every collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
