// File: endpoint/doc.go
// License: Apache-2.0

// Package endpoint implements the per-tile EndpointTable: EP_COUNT typed
// descriptors (send, receive, memory), the config_*/invalidate_* control
// operations, and the send/fetch/ack/reply data-plane operations that
// resolve to a local ring, a memory window, or the inter-node bridge.
package endpoint
