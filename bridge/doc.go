// File: bridge/doc.go
// License: Apache-2.0

// Package bridge implements the inter-node tunnel that carries DTU
// messages between kernels running on different nodes, over a
// best-effort UDP datagram transport (adapters.DatagramTransport). Each
// destination node gets its own outbound wire-exact ring; a single
// shared inbound ring receives everything addressed to this node's
// tiles regardless of which remote kernel sent it, since routing to
// the correct local endpoint happens off the header's reply_ep/label,
// not a stored destination tile.
package bridge
