// Package observability provides structured logging and Prometheus metrics
// for the ElectrIA gateway.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - Provider attempt, fallback and unavailable counters
//   - Provider attempt latency histograms
package observability
