// File: channel/table.go
// License: Apache-2.0
//
// ChannelTable binds a small dense channel index to the shared-memory
// region backing either a message ring or a memory window, keeping the
// global channel namespace separate from any particular tile's endpoint
// ids.

package channel

import (
	"sync"

	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/ring"
)

// Fixed channel-pool sizes.
const (
	MsgChannels = 8
	MemChannels = 4
)

type msgSlot struct {
	region []byte
	ring   *ring.Ring
}

type memSlot struct {
	region []byte
}

// Table is one tile's fixed-size pool of message and memory channels;
// every endpoint.Table creates its own.
type Table struct {
	mu  sync.Mutex
	msg [MsgChannels]msgSlot
	mem [MemChannels]memSlot
}

// NewTable returns an empty channel table.
func NewTable() *Table {
	return &Table{}
}

func checkMsgChannel(ch int) error {
	if ch < 0 || ch >= MsgChannels {
		return api.ErrInvalidArgs
	}
	return nil
}

func checkMemChannel(ch int) error {
	if ch < 0 || ch >= MemChannels {
		return api.ErrInvalidArgs
	}
	return nil
}

// BindMsg associates a raw shared-memory region with a message channel,
// clearing any previously attached ring. The region is not yet a valid
// ring until InitRing or AttachRing runs.
func (t *Table) BindMsg(ch int, region []byte) error {
	if err := checkMsgChannel(ch); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msg[ch] = msgSlot{region: region}
	return nil
}

// BindMem associates a raw shared-memory region with a memory channel.
func (t *Table) BindMem(ch int, region []byte) error {
	if err := checkMemChannel(ch); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mem[ch] = memSlot{region: region}
	return nil
}

// InitRing formats the region already bound to ch as a freshly created
// ring. Issued exactly once per channel, by the configuring (receiver)
// side.
func (t *Table) InitRing(ch int, slotCount, slotSize uint64) (*ring.Ring, error) {
	if err := checkMsgChannel(ch); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := &t.msg[ch]
	if slot.region == nil {
		return nil, api.ErrNoSpace
	}
	r, err := ring.Init(slot.region, slotCount, slotSize)
	if err != nil {
		return nil, err
	}
	slot.ring = r
	return r, nil
}

// AttachRing attaches to the ring already initialized on ch. Idempotent:
// a second call returns the same handle without re-validating the region.
func (t *Table) AttachRing(ch int) (*ring.Ring, error) {
	if err := checkMsgChannel(ch); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := &t.msg[ch]
	if slot.ring != nil {
		return slot.ring, nil
	}
	if slot.region == nil {
		return nil, api.ErrNoSpace
	}
	r, err := ring.Attach(slot.region)
	if err != nil {
		return nil, err
	}
	slot.ring = r
	return r, nil
}

// GetRing returns the ring currently bound to ch, if any.
func (t *Table) GetRing(ch int) (*ring.Ring, error) {
	if err := checkMsgChannel(ch); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := &t.msg[ch]
	if slot.ring == nil {
		return nil, api.ErrNotFound
	}
	return slot.ring, nil
}

// GetMem returns the raw memory-window region bound to ch.
func (t *Table) GetMem(ch int) ([]byte, error) {
	if err := checkMemChannel(ch); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	slot := &t.mem[ch]
	if slot.region == nil {
		return nil, api.ErrNotFound
	}
	return slot.region, nil
}

// Unbind clears a message channel, releasing both the region reference
// and any attached ring so the slot can be reused by a later BindMsg.
func (t *Table) Unbind(ch int) error {
	if err := checkMsgChannel(ch); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msg[ch] = msgSlot{}
	return nil
}

// UnbindMem clears a memory channel.
func (t *Table) UnbindMem(ch int) error {
	if err := checkMemChannel(ch); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mem[ch] = memSlot{}
	return nil
}
