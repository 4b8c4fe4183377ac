// File: kernel/doc.go
// License: Apache-2.0

// Package kernel ties ring, channel, endpoint, and capability together
// into the orchestration a real DTU firmware would provide: one Tile per
// polling-loop goroutine, a Kernel owning the tiles sharing one process,
// the control-plane operations (config_recv, ..., get_ep_count) and the
// syscall surface (NOOP, CREATEGATE, EXCHANGE, REVOKE) that an external
// collaborator drives through Kernel.Dispatch.
package kernel
