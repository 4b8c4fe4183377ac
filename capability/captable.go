// File: capability/captable.go
// License: Apache-2.0
//
// CapTable is a per-VPE sparse container keyed by selector; each VPE owns
// two (objects, mappings). A slot holds at most one capability and never
// hands out one in the Revoking state.

package capability

import (
	"sync"

	"github.com/momentics/vdtu/api"
)

// Kind enumerates the object kinds a capability can confer access to.
type Kind int

const (
	KindMessageGate Kind = iota
	KindMemoryWindow
	KindVPE
	KindService
	KindSession
	KindMapping
)

// State is a capability's lifecycle state.
type State int

const (
	StateLive State = iota
	StateRevoking
)

// RevokeHook is the kind-specific cleanup a capability runs exactly once
// during revocation, before its slot is freed. It must be idempotent.
// For any kind other than Service, a non-nil error from a descendant's
// hook panics, and one from the revocation root's hook is returned by
// Node.Revoke.
type RevokeHook func() error

// Capability is one forest node: an object plus its position in the
// parent/child tree and its owning table.
type Capability struct {
	ID       ID
	Kind     Kind
	Payload  any
	ParentID ID

	mu       sync.Mutex
	children map[ID]struct{}
	state    State
	hook     RevokeHook

	table    *CapTable
	selector uint32
}

// NewCapability constructs a root (ParentID == 0) or cloned capability.
// hook may be nil, in which case revocation performs no kind-specific
// cleanup.
func NewCapability(id ID, kind Kind, payload any, parent ID, hook RevokeHook) *Capability {
	if hook == nil {
		hook = func() error { return nil }
	}
	return &Capability{
		ID:       id,
		Kind:     kind,
		Payload:  payload,
		ParentID: parent,
		children: make(map[ID]struct{}),
		hook:     hook,
	}
}

// AddChild records childID as a child of c.
func (c *Capability) AddChild(childID ID) {
	c.mu.Lock()
	c.children[childID] = struct{}{}
	c.mu.Unlock()
}

// State returns the capability's current lifecycle state.
func (c *Capability) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// takeChildren atomically swaps out and returns the full children set,
// matching revoke_rec's "children ← take(c.children)".
func (c *Capability) takeChildren() []ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ID, 0, len(c.children))
	for id := range c.children {
		out = append(out, id)
	}
	c.children = make(map[ID]struct{})
	return out
}

// CapTable is a sparse, selector-indexed capability table for one VPE
// (one instance for objects, one for mappings).
type CapTable struct {
	mu   sync.Mutex
	caps map[uint32]*Capability
}

// NewCapTable returns an empty table.
func NewCapTable() *CapTable {
	return &CapTable{caps: make(map[uint32]*Capability)}
}

// Get returns the capability at sel, or nil if absent or Revoking.
func (t *CapTable) Get(sel uint32) *Capability {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.caps[sel]
	if !ok {
		return nil
	}
	if c.State() == StateRevoking {
		return nil
	}
	return c
}

// Set installs cap at sel, overwriting any prior occupant's local
// bookkeeping (the caller is responsible for not clobbering a live cap;
// exchange/create enforce that at a higher level).
func (t *CapTable) Set(sel uint32, cap *Capability) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cap.table = t
	cap.selector = sel
	t.caps[sel] = cap
}

// Unset frees sel without touching children; used by revoke_rec and by
// plain removal.
func (t *CapTable) Unset(sel uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.caps, sel)
}

// Obtain clones parent into this table at sel, returning the new child
// capability. Returns api.ErrExists if sel is already occupied.
func (t *CapTable) Obtain(sel uint32, parent *Capability, newID ID) (*Capability, error) {
	t.mu.Lock()
	if _, exists := t.caps[sel]; exists {
		t.mu.Unlock()
		return nil, api.ErrExists
	}
	t.mu.Unlock()

	child := NewCapability(newID, parent.Kind, parent.Payload, parent.ID, parent.hook)
	parent.AddChild(newID)
	t.Set(sel, child)
	return child, nil
}

// Selectors returns every occupied selector, for revoke_all traversal.
func (t *CapTable) Selectors() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint32, 0, len(t.caps))
	for sel := range t.caps {
		out = append(out, sel)
	}
	return out
}

// capAt is the raw, state-ignoring lookup used internally by the
// revocation walk, which must still be able to see a cap transitioning
// into Revoking.
func (t *CapTable) capAt(sel uint32) *Capability {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.caps[sel]
}
