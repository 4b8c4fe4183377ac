// File: channel/doc.go
// License: Apache-2.0

// Package channel implements the fixed-size message/memory channel pool
// that EndpointTable allocates from, binding each dense channel index to
// a shared-memory region.
package channel
