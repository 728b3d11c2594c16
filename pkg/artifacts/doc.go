// Package artifacts provides access to trained model artifacts: network
// weights, per-feature scaler bundles, and model metadata. Artifacts are
// JSON documents addressed by store-relative paths.
//
// The Store interface is the collaborator boundary the strategy engine
// consumes. Backends read from the local filesystem or from a remote share
// over SFTP; decorators add LRU caching with explicit invalidation and a
// circuit breaker for flaky remote stores.
package artifacts
