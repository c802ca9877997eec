// Package metrics exposes Prometheus counters and histograms for grid
// extractions and captcha recognition attempts.
//
// A Metrics value owns its own registry so that several instances can
// live side by side in tests. Handler serves the registry in the
// Prometheus text format for the --metrics-addr listener.
package metrics
