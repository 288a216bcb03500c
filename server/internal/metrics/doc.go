// Package metrics counts calculator activity and exposes it on /metrics in
// the Prometheus text exposition format.
//
// Counters are plain atomics; gauges are sampled from callbacks at scrape
// time. Gather builds client_model MetricFamilies, which expfmt encodes.
// There is no dependency on the Prometheus client library registry.
package metrics
