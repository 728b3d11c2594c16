// Package telemetry provides the observability stack for the optimization
// service: zerolog structured logging, Prometheus metrics, OpenTelemetry
// tracing, and an in-memory log of recent cycle outcomes served by the API.
package telemetry
