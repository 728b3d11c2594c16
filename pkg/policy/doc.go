// Package policy evaluates Rego guardrails against recommendation sets
// before they are persisted. Built-in guardrails enforce the threshold
// bands; operators can drop additional .rego files next to the service to
// add plant-specific rules. A violation blocks persistence of the cycle's
// recommendations, never the cycle itself.
package policy
