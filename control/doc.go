// Package control
//
// Hot-reload, runtime metrics, configuration control, and debug
// introspection layer for a running kernel instance.
//
// Provides concurrent-safe state handling primitives including:
//   - Immutable snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Metrics telemetry contracts
//   - State export, debug hooks, and probe registration
package control
