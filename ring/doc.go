// File: ring/doc.go
// License: Apache-2.0

// Package ring implements the wire-exact SPSC message ring: a 64-byte
// control block followed by a power-of-two array of fixed-size slots,
// each holding a wire.Header plus payload. Producer and consumer each
// own exactly one field of the control block.
package ring
