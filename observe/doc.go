// Package observe provides structured logging, metrics and tracing for the
// warehouse, cache and workflow packages.
//
// Logging is backed by zap; metrics and traces use OpenTelemetry with a
// configurable exporter (otlp, prometheus, stdout or none). Components take
// the narrow Logger, Metrics and Tracer interfaces so tests can pass the Nop
// variants.
package observe
