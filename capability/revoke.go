// File: capability/revoke.go
// License: Apache-2.0
//
// Node models one kernel's capability subsystem: its own RevocationList,
// a reference to the index shared by every kernel in the system, and a
// Link used to coordinate revocation with remote kernels that hold
// children of a capability being revoked here.

package capability

import (
	"sync"

	"github.com/momentics/vdtu/api"
)

// maxBatch is the largest set of child ids folded into a single remote
// revoke message before it is flushed and a new batch started.
const maxBatch = 64

// Link lets a Node hand a batch of child ids to a remote kernel for
// revocation, and lets that remote kernel report completion back. A
// real deployment routes these as kernelcall messages over the bridge;
// DirectLink below wires two in-process Nodes together for tests and
// for the single-process emulation this module runs as.
type Link interface {
	SendRevokeBatch(toKernel uint16, parentID, originID ID, childIDs []ID)
	SendRevokeFinish(toKernel uint16, parentID ID)
}

// Node is one kernel's capability-subsystem state.
type Node struct {
	KernelID uint16

	revocations *RevocationList
	index       *Index
	link        Link
}

// NewNode constructs a Node sharing index with every other kernel in the
// system. link may be nil if this kernel never needs to reach a peer
// (a single-kernel deployment, or tests that only revoke local trees).
func NewNode(kernelID uint16, index *Index, link Link) *Node {
	return &Node{
		KernelID:    kernelID,
		revocations: NewRevocationList(),
		index:       index,
		link:        link,
	}
}

// Create installs a fresh root capability at sel in table, recording its
// location in the shared index.
func (n *Node) Create(table *CapTable, sel uint32, id ID, kind Kind, payload any, hook RevokeHook) (*Capability, error) {
	if table.Get(sel) != nil {
		return nil, api.ErrExists
	}
	cap := NewCapability(id, kind, payload, 0, hook)
	table.Set(sel, cap)
	n.index.Set(id, Location{Table: table, Selector: sel})
	return cap, nil
}

// Exchange clones parent into dstTable at dstSel as a new child capability
// with id childID, recording the parent/child edge and the child's
// location. Returns api.ErrExists if dstSel is already occupied.
func (n *Node) Exchange(dstTable *CapTable, dstSel uint32, parent *Capability, childID ID) (*Capability, error) {
	child, err := dstTable.Obtain(dstSel, parent, childID)
	if err != nil {
		return nil, err
	}
	n.index.Set(childID, Location{Table: dstTable, Selector: dstSel})
	return child, nil
}

// Revoke revokes the capability at sel in table, blocking the calling
// goroutine until every local and remote descendant has acknowledged.
// own additionally removes the cap from its own table before returning
// (ep/mapping revocation semantics use own=true; VPE/session teardown
// that only needs descendants gone can pass own=false).
func (n *Node) Revoke(table *CapTable, sel uint32, own bool) error {
	cap := table.capAt(sel)
	if cap == nil {
		// Revoking an already-empty selector is a no-op, not an error —
		// spec.md §8 requires OK here (e.g. a retried or racing revoke).
		return nil
	}
	n.revokeRec(cap, cap.ID)
	if own {
		cap.mu.Lock()
		cap.state = StateRevoking
		cap.mu.Unlock()
		if err := cap.hook(); err != nil && cap.Kind != KindService {
			return err
		}
		table.Unset(sel)
		n.index.Remove(cap.ID)
	}
	return nil
}

// revokeRec implements revoke_rec(c, origin): for a non-root c it marks
// c Revoking and runs its cleanup hook (the root's own state and hook are
// handled by Revoke, and only when own is set), walks c's children (each
// recursed into, locally or batched to a remote kernel), and, if
// c.ID == origin, blocks until every descendant has finished before
// returning.
//
// The return value is the number of still-outstanding acknowledgements
// this call leaves behind for its caller to absorb into its own
// ongoing entry (0 once everything under c has finished synchronously).
func (n *Node) revokeRec(c *Capability, origin ID) int {
	if c.ID != origin {
		c.mu.Lock()
		c.state = StateRevoking
		c.mu.Unlock()

		if err := c.hook(); err != nil && c.Kind != KindService {
			// Fatal per policy for all kinds but Service: a descendant's
			// revocation cannot be recovered partway through the walk.
			panic("capability: revoke hook failed on descendant: " + err.Error())
		}
	}

	children := c.takeChildren()

	var ongoing *Entry
	ensureOngoing := func() *Entry {
		if ongoing != nil {
			return ongoing
		}
		if e := n.revocations.Find(c.ID); e != nil {
			ongoing = e
			return ongoing
		}
		ongoing = n.revocations.Add(c.ID, c.ParentID, origin)
		return ongoing
	}

	var remoteBatches map[uint16][]ID
	flush := func(kernel uint16) {
		ids := remoteBatches[kernel]
		if len(ids) == 0 {
			return
		}
		delete(remoteBatches, kernel)
		e := ensureOngoing()
		e.AddAwaited(1)
		n.link.SendRevokeBatch(kernel, c.ID, origin, ids)
	}

	for _, childID := range children {
		loc, ok := n.index.Get(childID)
		if !ok {
			continue
		}
		if ResponsibleKernel(childID) != n.KernelID {
			if remoteBatches == nil {
				remoteBatches = make(map[uint16][]ID)
			}
			kernel := ResponsibleKernel(childID)
			remoteBatches[kernel] = append(remoteBatches[kernel], childID)
			if len(remoteBatches[kernel]) >= maxBatch {
				flush(kernel)
			}
			continue
		}

		child := loc.Table.capAt(loc.Selector)
		if child == nil {
			continue
		}
		left := n.revokeRec(child, origin)
		loc.Table.Unset(loc.Selector)
		n.index.Remove(childID)
		if left > 0 {
			e := ensureOngoing()
			childEntry := n.revocations.Find(childID)
			if childEntry != nil {
				childEntry.Subscribe(e)
				e.AddAwaited(1)
			}
		}
	}
	if remoteBatches != nil {
		for kernel := range remoteBatches {
			flush(kernel)
		}
	}

	if ongoing == nil {
		return 0
	}

	if c.ID == origin {
		if ongoing.Awaited() > 0 {
			<-ongoing.blocked
		} else {
			n.finishEntry(ongoing)
		}
		return 0
	}
	return ongoing.Awaited()
}

// finishEntry runs exactly once per entry: it propagates completion to
// every subscriber, then wakes a blocked root waiter or fires a remote
// onDone callback, then drops the entry from the RevocationList.
func (n *Node) finishEntry(e *Entry) {
	e.once.Do(func() {
		for _, sub := range e.takeSubscribers() {
			n.decrementAwaited(sub)
		}
		close(e.blocked)
		if e.onDone != nil {
			e.onDone(e)
		}
		n.revocations.Remove(e.ID)
	})
}

func (n *Node) decrementAwaited(e *Entry) {
	e.mu.Lock()
	e.awaited--
	done := e.awaited <= 0
	e.mu.Unlock()
	if done {
		n.finishEntry(e)
	}
}

// ReceiveRevokeBatch is the remote-kernel entry point invoked (directly
// by DirectLink, or via a kernelcall dispatch in a real deployment) when
// another kernel hands this one a batch of children to revoke on its
// behalf. It revokes each reachable child locally, accumulates any
// outstanding work into a local ongoing entry keyed at parentID, and
// reports completion back to fromKernel via SendRevokeFinish once every
// child (and its own descendants) has finished.
func (n *Node) ReceiveRevokeBatch(fromKernel uint16, parentID, origin ID, childIDs []ID) {
	var ongoing *Entry
	for _, childID := range childIDs {
		loc, ok := n.index.Get(childID)
		if !ok {
			continue
		}
		child := loc.Table.capAt(loc.Selector)
		if child == nil {
			continue
		}
		left := n.revokeRec(child, origin)
		loc.Table.Unset(loc.Selector)
		n.index.Remove(childID)
		if left > 0 {
			if ongoing == nil {
				ongoing = n.revocations.Add(parentID, 0, origin)
			}
			childEntry := n.revocations.Find(childID)
			if childEntry != nil {
				childEntry.Subscribe(ongoing)
				ongoing.AddAwaited(1)
			}
		}
	}

	if ongoing == nil {
		n.link.SendRevokeFinish(fromKernel, parentID)
		return
	}
	if ongoing.Awaited() == 0 {
		n.finishEntryWithRemote(ongoing, fromKernel, parentID)
		return
	}
	ongoing.onDone = func(*Entry) {
		n.link.SendRevokeFinish(fromKernel, parentID)
	}
}

func (n *Node) finishEntryWithRemote(e *Entry, toKernel uint16, parentID ID) {
	e.onDone = func(*Entry) {
		n.link.SendRevokeFinish(toKernel, parentID)
	}
	n.finishEntry(e)
}

// ReceiveRevokeFinish is the remote-kernel entry point invoked when a
// peer kernel finishes revoking a batch this Node sent it.
func (n *Node) ReceiveRevokeFinish(parentID ID) {
	if e := n.revocations.Find(parentID); e != nil {
		n.decrementAwaited(e)
	}
}

// RevokeAll tears down every capability in table, for VPE-teardown use;
// it sweeps selectors rather than walking a single root's children.
func (n *Node) RevokeAll(table *CapTable) error {
	for _, sel := range table.Selectors() {
		if err := n.Revoke(table, sel, true); err != nil {
			return err
		}
	}
	return nil
}

// DirectLink wires two or more in-process Nodes together, delivering
// revoke batches and finishes as direct synchronous calls. It stands in
// for the kernelcall-over-bridge transport a multi-host deployment uses.
type DirectLink struct {
	mu    sync.Mutex
	peers map[uint16]*Node
}

// NewDirectLink returns an empty link; register peers with AddPeer.
func NewDirectLink() *DirectLink {
	return &DirectLink{peers: make(map[uint16]*Node)}
}

// AddPeer registers kernel n under kernelID so other peers can reach it.
func (l *DirectLink) AddPeer(kernelID uint16, n *Node) {
	l.mu.Lock()
	l.peers[kernelID] = n
	l.mu.Unlock()
}

func (l *DirectLink) peer(kernelID uint16) *Node {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peers[kernelID]
}

// SendRevokeBatch implements Link by calling the target peer directly.
func (l *DirectLink) SendRevokeBatch(toKernel uint16, parentID, originID ID, childIDs []ID) {
	if p := l.peer(toKernel); p != nil {
		p.ReceiveRevokeBatch(parentID.Kernel(), parentID, originID, childIDs)
	}
}

// SendRevokeFinish implements Link by calling the target peer directly.
func (l *DirectLink) SendRevokeFinish(toKernel uint16, parentID ID) {
	if p := l.peer(toKernel); p != nil {
		p.ReceiveRevokeFinish(parentID)
	}
}
