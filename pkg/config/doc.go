// Package config loads and validates the two configuration surfaces of the
// optimization service.
//
// # Strategy documents
//
// A strategy document is a YAML file declaring the typed process variables,
// the skills operating on them, and the ordered tasks of one optimization
// pipeline. StrategyParser validates documents against a CUE schema before
// decoding, so malformed documents are rejected with precise field-level
// errors instead of surfacing later as engine failures:
//
//	parser, err := config.NewStrategyParser()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := parser.ParseFile("strategy.yaml")
//
// Watcher observes a strategy document for on-disk changes and coalesces
// editor write bursts into single change notifications, which the service
// uses for hot reloads.
//
// # Service configuration
//
// ServiceConfig is the process-level configuration: cycle interval, database
// path, artifact store backend, API listener, guardrails, and telemetry.
// LoadServiceConfig reads it from YAML, applies defaults, and validates it
// with struct tags.
package config
