// File: internal/concurrency/doc.go
// License: Apache-2.0
//
// Concurrency primitives: a lock-free SPSC queue (used by the bridge as
// its receive hand-off), a generic SPSC ring buffer, a resizable worker
// executor, and a heap-backed timer scheduler. The ring buffer and the
// scheduler have no caller elsewhere in the module.
package concurrency
