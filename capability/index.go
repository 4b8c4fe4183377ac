// File: capability/index.go
// License: Apache-2.0
//
// Index is the distributed location store: a keyed map from cap id to
// the (table, selector) currently holding it. In this single-process
// emulation every kernel Node shares one Index instance, standing in for
// a partitioned hash map spanning real hosts.

package capability

import "sync"

// Location names where a capability currently lives.
type Location struct {
	Table    *CapTable
	Selector uint32
}

// Index maps a capability id to its current location.
type Index struct {
	mu      sync.Mutex
	entries map[ID]Location
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[ID]Location)}
}

// Set records id's location.
func (ix *Index) Set(id ID, loc Location) {
	ix.mu.Lock()
	ix.entries[id] = loc
	ix.mu.Unlock()
}

// Get returns id's location, if known.
func (ix *Index) Get(id ID) (Location, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	loc, ok := ix.entries[id]
	return loc, ok
}

// Remove drops id's location entry.
func (ix *Index) Remove(id ID) {
	ix.mu.Lock()
	delete(ix.entries, id)
	ix.mu.Unlock()
}

// ResponsibleKernel returns the kernel id a cap id's hash routes to: in
// this packing scheme that is simply the kernel field baked into the id
// at creation time.
func ResponsibleKernel(id ID) uint16 {
	return id.Kernel()
}
