// File: api/reactor.go
//
// Defines the abstract interface for the cooperative, single-threaded
// per-tile poll loop: a Reactor visits a fixed set of PollSources once
// per iteration and yields when none of them did work.

package api

import "context"

// PollSource is one unit of work a Reactor visits each iteration: a
// receive gate, the inbound ring, or the outbound-ring handoff.
type PollSource interface {
	// Poll performs one pass over the source's pending work and reports
	// whether it did any.
	Poll() (didWork bool, err error)
}

// Reactor runs a cooperative poll loop over its registered sources until
// ctx is done.
type Reactor interface {
	Run(ctx context.Context) error
	RegisterSource(s PollSource) error
}
