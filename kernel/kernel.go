// File: kernel/kernel.go
// License: Apache-2.0
//
// Kernel owns every Tile running in this process and the Registry that
// lets one tile's endpoint table reach another's receive ring directly,
// falling back to a RemoteSender (the bridge) for tiles owned by a
// different kernel process.

package kernel

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/capability"
	"github.com/momentics/vdtu/endpoint"
	"github.com/momentics/vdtu/reactor"
	"github.com/momentics/vdtu/ring"
)

// Registry resolves cross-tile routing for every endpoint.Table this
// kernel hands out: local destinations resolve to another Tile's
// receive ring directly; non-local destinations fall through to
// whatever RemoteSender SetRemote installed (ordinarily a bridge.Bridge).
type Registry struct {
	mu     sync.RWMutex
	tiles  map[uint16]*Tile
	remote endpoint.RemoteSender
}

var (
	_ endpoint.RecvRingResolver = (*Registry)(nil)
	_ endpoint.RemoteSender     = (*Registry)(nil)
)

// NewRegistry returns an empty Registry with no remote sender installed.
func NewRegistry() *Registry {
	return &Registry{tiles: make(map[uint16]*Tile)}
}

// SetRemote installs the sender used for any destination tile this
// process does not host.
func (r *Registry) SetRemote(remote endpoint.RemoteSender) {
	r.mu.Lock()
	r.remote = remote
	r.mu.Unlock()
}

func (r *Registry) register(t *Tile) {
	r.mu.Lock()
	r.tiles[t.ID] = t
	r.mu.Unlock()
}

// ResolveRecvRing implements endpoint.RecvRingResolver.
func (r *Registry) ResolveRecvRing(destTile uint16, destEP uint8) (*ring.Ring, bool) {
	r.mu.RLock()
	t, ok := r.tiles[destTile]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return t.Endpoints.LookupRecvRing(destEP)
}

// SendRemote implements endpoint.RemoteSender.
func (r *Registry) SendRemote(destTile uint16, p ring.SendParams, payload []byte) error {
	r.mu.RLock()
	remote := r.remote
	r.mu.RUnlock()
	if remote == nil {
		return api.ErrNoDest
	}
	return remote.SendRemote(destTile, p, payload)
}

// Tile is one polling-loop goroutine's state: its endpoint table, its
// capability-subsystem node, and the per-VPE capability tables it hosts.
type Tile struct {
	ID       uint16
	KernelID uint16

	Endpoints *endpoint.Table
	CapNode   *capability.Node

	mu        sync.Mutex
	vpes      map[uint16]*capability.CapTable
	privilege uint8

	wake    *wakeupHandle
	reactor *reactor.Reactor
}

// RegisterSource adds s to the set this tile's Run loop polls each
// iteration — a receive gate, the bridge's inbound ring, or the
// outbound-ring drain.
func (t *Tile) RegisterSource(s api.PollSource) error {
	return t.reactor.RegisterSource(s)
}

// Run drives the tile's cooperative poll loop until ctx is canceled or
// a registered source's Poll returns an error.
func (t *Tile) Run(ctx context.Context) error {
	return t.reactor.Run(ctx)
}

// vpeTable returns the CapTable for vpeID, creating it on first use.
func (t *Tile) vpeTable(vpeID uint16) *capability.CapTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	tbl, ok := t.vpes[vpeID]
	if !ok {
		tbl = capability.NewCapTable()
		t.vpes[vpeID] = tbl
	}
	return tbl
}

// Close releases the tile's OS-level wakeup handle.
func (t *Tile) Close() error {
	if t.wake == nil {
		return nil
	}
	return t.wake.Close()
}

// Kernel owns every Tile in this process plus the capability Index
// shared with every other kernel in the system.
type Kernel struct {
	ID       uint16
	Index    *capability.Index
	Registry *Registry

	localTileCount uint16
	idle           time.Duration

	mu    sync.Mutex
	tiles map[uint16]*Tile
}

// New constructs a Kernel identified by kernelID. localTileCount is the
// threshold handed to every tile's endpoint table: destination tiles
// below it are resolved to a local receive ring through the Registry,
// those at or above it route through the Registry's remote sender.
// NewTile does not check tile ids against it. idle bounds how long a
// tile's reactor sleeps between empty poll passes.
func New(kernelID uint16, localTileCount uint16, idle time.Duration, index *capability.Index, registry *Registry) *Kernel {
	if index == nil {
		index = capability.NewIndex()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Kernel{
		ID:             kernelID,
		Index:          index,
		Registry:       registry,
		localTileCount: localTileCount,
		idle:           idle,
		tiles:          make(map[uint16]*Tile),
	}
}

// NewTile brings up a fresh Tile under this kernel, wired to the shared
// Registry and Index. link is the capability.Link this tile's Node uses
// to coordinate revocation with peer kernels; nil is valid for a
// single-kernel deployment.
func (k *Kernel) NewTile(tileID uint16, link capability.Link) (*Tile, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.tiles[tileID]; exists {
		return nil, api.ErrExists
	}

	wake, err := newWakeupHandle()
	if err != nil {
		return nil, err
	}

	t := &Tile{
		ID:        tileID,
		KernelID:  k.ID,
		Endpoints: endpoint.NewTable(tileID, k.localTileCount, k.Registry, k.Registry),
		CapNode:   capability.NewNode(k.ID, k.Index, link),
		vpes:      make(map[uint16]*capability.CapTable),
		wake:      wake,
		reactor:   reactor.NewReactor(k.idle),
	}
	if err := t.reactor.RegisterSource(&wakeupSource{wake: wake}); err != nil {
		wake.Close()
		return nil, err
	}

	k.tiles[tileID] = t
	k.Registry.register(t)
	return t, nil
}

// wakeupSource drains a tile's OS-level wake notification once per
// reactor pass, so a control-plane wakeup_pe interrupts the idle
// backoff instead of waiting it out.
type wakeupSource struct{ wake *wakeupHandle }

func (w *wakeupSource) Poll() (bool, error) {
	return w.wake.Wait(0), nil
}

// Tile returns the tile previously brought up with the given id.
func (k *Kernel) Tile(tileID uint16) (*Tile, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.tiles[tileID]
	if !ok {
		return nil, api.ErrNotFound
	}
	return t, nil
}

// GetEPCount implements the get_ep_count control operation.
func (k *Kernel) GetEPCount() int { return endpoint.EPCount }

// ConfigRecv implements the config_recv control operation.
func (k *Kernel) ConfigRecv(tileID uint16, ep int, bufOrder, msgOrder, flags uint8) (int, error) {
	t, err := k.Tile(tileID)
	if err != nil {
		return 0, err
	}
	return t.Endpoints.ConfigRecv(ep, bufOrder, msgOrder, flags)
}

// ConfigSend implements the config_send control operation.
func (k *Kernel) ConfigSend(tileID uint16, ep int, destTile uint16, destEP uint8, destVPE uint16, msgSizeMax uint16, label uint64, credits uint16) (int, error) {
	t, err := k.Tile(tileID)
	if err != nil {
		return 0, err
	}
	return t.Endpoints.ConfigSend(ep, destTile, destEP, destVPE, msgSizeMax, label, credits)
}

// ConfigMem implements the config_mem control operation.
func (k *Kernel) ConfigMem(tileID uint16, ep int, destTile uint16, base, size uint64, destVPE uint16, perm uint8) (int, error) {
	t, err := k.Tile(tileID)
	if err != nil {
		return 0, err
	}
	return t.Endpoints.ConfigMem(ep, destTile, base, size, destVPE, perm)
}

// InvalidateEP implements the invalidate_ep control operation.
func (k *Kernel) InvalidateEP(tileID uint16, ep int) error {
	t, err := k.Tile(tileID)
	if err != nil {
		return err
	}
	return t.Endpoints.InvalidateEP(ep)
}

// InvalidateEPs implements the invalidate_eps control operation.
func (k *Kernel) InvalidateEPs(tileID uint16, first int) error {
	t, err := k.Tile(tileID)
	if err != nil {
		return err
	}
	return t.Endpoints.InvalidateEPs(first)
}

// SetVPEID implements the set_vpe_id control operation.
func (k *Kernel) SetVPEID(tileID uint16, vpeID uint16) error {
	t, err := k.Tile(tileID)
	if err != nil {
		return err
	}
	t.Endpoints.SetVPE(vpeID)
	return nil
}

// SetPrivilege implements the set_privilege control operation.
func (k *Kernel) SetPrivilege(tileID uint16, priv uint8) error {
	t, err := k.Tile(tileID)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.privilege = priv
	t.mu.Unlock()
	return nil
}

// Privilege returns the privilege flag most recently set on tileID.
func (k *Kernel) Privilege(tileID uint16) (uint8, error) {
	t, err := k.Tile(tileID)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.privilege, nil
}

// WakeupPE implements the wakeup_pe control operation: it raises
// tileID's wake notification, interrupting an idle reactor's backoff.
func (k *Kernel) WakeupPE(tileID uint16) error {
	t, err := k.Tile(tileID)
	if err != nil {
		return err
	}
	return t.wake.Signal()
}
