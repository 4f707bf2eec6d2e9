// Package conductor is an in-process component lifecycle orchestrator.
//
// It manages a set of long-lived, named components (databases, caches,
// servers, workers, ...) through dependency-ordered startup, multi-phase
// shutdown, and runtime operations (restart, reload/info/debug signals,
// health checks, messaging) while keeping all of that safe under concurrent
// operator calls.
//
// The orchestrator never supervises automatic restarts, never clusters
// across processes, keeps no durable state, and exposes no RPC surface —
// callers drive it through the Manager API or through a signal adapter.
package conductor
