// SPDX-License-Identifier: MIT

package reactor

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/vdtu/api"
)

// Reactor is a cooperative, single-threaded poll loop over a fixed set
// of PollSources. Each iteration visits every source once; if none did
// work the loop backs off briefly before retrying, emulating a tile
// that idles rather than spins when it has nothing to do.
type Reactor struct {
	mu      sync.Mutex
	sources []api.PollSource
	idle    time.Duration
}

var _ api.Reactor = (*Reactor)(nil)

// NewReactor returns a Reactor that sleeps idle between empty poll
// passes when no source reported work.
func NewReactor(idle time.Duration) *Reactor {
	if idle <= 0 {
		idle = time.Microsecond * 50
	}
	return &Reactor{idle: idle}
}

// RegisterSource adds s to the set of sources visited each iteration.
func (r *Reactor) RegisterSource(s api.PollSource) error {
	if s == nil {
		return api.ErrInvalidArgs
	}
	r.mu.Lock()
	r.sources = append(r.sources, s)
	r.mu.Unlock()
	return nil
}

// Run visits every registered source once per iteration until ctx is
// done, returning ctx.Err(), or until a source's Poll returns an error,
// returning that error.
func (r *Reactor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		r.mu.Lock()
		sources := make([]api.PollSource, len(r.sources))
		copy(sources, r.sources)
		r.mu.Unlock()

		didWork := false
		for _, s := range sources {
			ok, err := s.Poll()
			if err != nil {
				return err
			}
			didWork = didWork || ok
		}

		if !didWork {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.idle):
			}
		}
	}
}
