// Package prometheus provides Prometheus collectors for fortress metrics.
//
// [NewPrometheusExporter] accepts a [fortress.Engine] and exposes an
// [net/http.Handler] that renders all engine counters and histograms in
// Prometheus text exposition format. Counter names are prefixed
// fortress_*_total; the single histogram is fortress_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
