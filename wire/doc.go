// File: wire/doc.go
// License: Apache-2.0

// Package wire pins the byte-exact layout of the DTU message header and
// the inter-node datagram framing (header followed by payload bytes).
package wire
