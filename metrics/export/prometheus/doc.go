// Package prometheus exposes authguard metrics through client_golang.
//
// [PrometheusExporter] implements prometheus.Collector, so it can be
// registered with any registry, and [PrometheusExporter.Handler] serves it
// from a private one. Counter names are authguard_*_total; the single
// histogram is authguard_identity_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
