// File: endpoint/table.go
// License: Apache-2.0
//
// EndpointTable holds one tile's EP_COUNT endpoint descriptors and the
// message/memory channel pool they allocate from, and implements the
// control-plane config_*/invalidate_* operations plus the data-plane
// send/fetch/ack/reply operations.

package endpoint

import (
	"sync"

	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/channel"
	"github.com/momentics/vdtu/ring"
	"github.com/momentics/vdtu/wire"
)

// EPCount is the fixed number of endpoint descriptors per tile.
const EPCount = 16

// ReplyEPBase is the first endpoint id in the reserved range used for
// ephemeral reply-send endpoints, so a reply's outbound send can never
// collide with a handler-polled endpoint.
const ReplyEPBase = EPCount - 4

// Kind discriminates the tagged-union endpoint descriptor.
type Kind int

const (
	KindInvalid Kind = iota
	KindSend
	KindReceive
	KindMemory
)

// SendDesc is the Send-variant payload.
type SendDesc struct {
	DestTile   uint16
	DestEP     uint8
	DestVPE    uint16
	MsgSizeMax uint16
	Label      uint64
	Credits    uint16
	channel    int
	destRing   *ring.Ring
}

// ReceiveDesc is the Receive-variant payload.
type ReceiveDesc struct {
	BufOrder uint8
	MsgOrder uint8
	Flags    uint8
	channel  int
}

// MemoryDesc is the Memory-variant payload.
type MemoryDesc struct {
	DestTile uint16
	BaseAddr uint64
	Size     uint64
	DestVPE  uint16
	Perm     uint8
	channel  int
}

// Descriptor is the tagged union stored per endpoint slot.
type Descriptor struct {
	Kind Kind
	Send SendDesc
	Recv ReceiveDesc
	Mem  MemoryDesc
}

// RecvRingResolver locates the ring backing another tile's already
// configured receive endpoint, so a local config_send can attach to it
// directly (both tiles share one OS process in this emulation).
type RecvRingResolver interface {
	ResolveRecvRing(destTile uint16, destEP uint8) (*ring.Ring, bool)
}

// RemoteSender hands a message to the inter-node bridge's outbound ring
// when the destination tile is not local.
type RemoteSender interface {
	SendRemote(destTile uint16, p ring.SendParams, payload []byte) error
}

// Table is one tile's endpoint descriptor array plus its private channel
// pool.
type Table struct {
	mu             sync.Mutex
	tileID         uint16
	vpeID          uint16
	eps            [EPCount]Descriptor
	msgFree        [channel.MsgChannels]bool
	memFree        [channel.MemChannels]bool
	channels       *channel.Table
	localTileCount uint16
	resolver       RecvRingResolver
	remote         RemoteSender
}

// NewTable constructs an endpoint table for tileID. localTileCount draws
// the line between tiles reachable via a direct in-process ring (below
// the threshold) and tiles requiring the bridge (at or above it).
func NewTable(tileID uint16, localTileCount uint16, resolver RecvRingResolver, remote RemoteSender) *Table {
	t := &Table{
		tileID:         tileID,
		channels:       channel.NewTable(),
		localTileCount: localTileCount,
		resolver:       resolver,
		remote:         remote,
	}
	for i := range t.msgFree {
		t.msgFree[i] = true
	}
	for i := range t.memFree {
		t.memFree[i] = true
	}
	return t
}

// SetVPE associates a VPE id with this tile, mirroring the control
// operation set_vpe_id.
func (t *Table) SetVPE(vpeID uint16) {
	t.mu.Lock()
	t.vpeID = vpeID
	t.mu.Unlock()
}

func checkEP(ep int) error {
	if ep < 0 || ep >= EPCount {
		return api.ErrInvalidArgs
	}
	return nil
}

// allocMsgChannel returns the lowest-index free message channel, or
// api.ErrNoSpace if the pool is exhausted.
func (t *Table) allocMsgChannel() (int, error) {
	for i, free := range t.msgFree {
		if free {
			t.msgFree[i] = false
			return i, nil
		}
	}
	return 0, api.ErrNoSpace
}

func (t *Table) allocMemChannel() (int, error) {
	for i, free := range t.memFree {
		if free {
			t.memFree[i] = false
			return i, nil
		}
	}
	return 0, api.ErrNoSpace
}

func (t *Table) freeMsgChannel(ch int) {
	if ch < 0 || ch >= channel.MsgChannels {
		return
	}
	t.channels.Unbind(ch)
	t.msgFree[ch] = true
}

func (t *Table) freeMemChannel(ch int) {
	if ch < 0 || ch >= channel.MemChannels {
		return
	}
	t.channels.UnbindMem(ch)
	t.memFree[ch] = true
}

// clampToPage halves slotCount, never below 2, until the ring fits in
// one page (4096 bytes). slotSize is left unchanged, so with slots
// larger than 2016 bytes the two-slot ring still exceeds one page.
func clampToPage(slotCount, slotSize uint64) (uint64, uint64) {
	const pageSize = 4096
	for ring.TotalSize(slotCount, slotSize) > pageSize && slotCount > 2 {
		slotCount >>= 1
	}
	return slotCount, slotSize
}

// ConfigRecv allocates a free message channel, initializes its ring from
// (bufOrder, msgOrder), and installs a Receive descriptor at ep.
func (t *Table) ConfigRecv(ep int, bufOrder, msgOrder uint8, flags uint8) (int, error) {
	if err := checkEP(ep); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, err := t.allocMsgChannel()
	if err != nil {
		return 0, err
	}

	slotCount := uint64(1) << bufOrder
	slotSize := uint64(1) << msgOrder
	if slotSize < wire.HeaderSize {
		slotSize = wire.HeaderSize
	}
	slotCount, slotSize = clampToPage(slotCount, slotSize)

	region := make([]byte, ring.TotalSize(slotCount, slotSize))
	if err := t.channels.BindMsg(ch, region); err != nil {
		t.msgFree[ch] = true
		return 0, err
	}
	if _, err := t.channels.InitRing(ch, slotCount, slotSize); err != nil {
		t.freeMsgChannel(ch)
		return 0, err
	}

	t.eps[ep] = Descriptor{
		Kind: KindReceive,
		Recv: ReceiveDesc{BufOrder: bufOrder, MsgOrder: msgOrder, Flags: flags, channel: ch},
	}
	return ch, nil
}

// LookupRecvRing returns the ring backing one of this tile's own receive
// endpoints, so a kernel-level RecvRingResolver can dispatch a
// (destTile, destEP) lookup to the right tile's table.
func (t *Table) LookupRecvRing(destEP uint8) (*ring.Ring, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := checkEP(int(destEP)); err != nil {
		return nil, false
	}
	d := t.eps[destEP]
	if d.Kind != KindReceive {
		return nil, false
	}
	r, err := t.channels.GetRing(d.Recv.channel)
	if err != nil {
		return nil, false
	}
	return r, true
}

// ConfigSend resolves the destination's receive ring (local) and
// installs a Send descriptor at ep. Remote destinations (>= the local
// tile threshold) are recorded without a resolved ring; Send routes them
// through the bridge instead.
func (t *Table) ConfigSend(ep int, destTile uint16, destEP uint8, destVPE uint16, msgSizeMax uint16, label uint64, credits uint16) (int, error) {
	if err := checkEP(ep); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var destRing *ring.Ring
	if destTile < t.localTileCount {
		if t.resolver == nil {
			return 0, api.ErrNoDest
		}
		r, ok := t.resolver.ResolveRecvRing(destTile, destEP)
		if !ok {
			return 0, api.ErrNoDest
		}
		destRing = r
	}

	ch, err := t.allocMsgChannel()
	if err != nil {
		return 0, err
	}

	t.eps[ep] = Descriptor{
		Kind: KindSend,
		Send: SendDesc{
			DestTile:   destTile,
			DestEP:     destEP,
			DestVPE:    destVPE,
			MsgSizeMax: msgSizeMax,
			Label:      label,
			Credits:    credits,
			channel:    ch,
			destRing:   destRing,
		},
	}
	return ch, nil
}

// ConfigMem allocates a memory channel and installs a Memory descriptor.
func (t *Table) ConfigMem(ep int, destTile uint16, base, size uint64, destVPE uint16, perm uint8) (int, error) {
	if err := checkEP(ep); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ch, err := t.allocMemChannel()
	if err != nil {
		return 0, err
	}
	region := make([]byte, size)
	if err := t.channels.BindMem(ch, region); err != nil {
		t.memFree[ch] = true
		return 0, err
	}

	t.eps[ep] = Descriptor{
		Kind: KindMemory,
		Mem: MemoryDesc{
			DestTile: destTile,
			BaseAddr: base,
			Size:     size,
			DestVPE:  destVPE,
			Perm:     perm,
			channel:  ch,
		},
	}
	return ch, nil
}

// InvalidateEP marks ep Invalid and frees its backing channel.
func (t *Table) InvalidateEP(ep int) error {
	if err := checkEP(ep); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invalidateLocked(ep)
}

func (t *Table) invalidateLocked(ep int) error {
	d := t.eps[ep]
	switch d.Kind {
	case KindReceive:
		t.freeMsgChannel(d.Recv.channel)
	case KindSend:
		t.freeMsgChannel(d.Send.channel)
	case KindMemory:
		t.freeMemChannel(d.Mem.channel)
	}
	t.eps[ep] = Descriptor{}
	return nil
}

// InvalidateEPs sweeps every endpoint from first to EPCount-1.
func (t *Table) InvalidateEPs(first int) error {
	if first < 0 || first > EPCount {
		return api.ErrInvalidArgs
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for ep := first; ep < EPCount; ep++ {
		if err := t.invalidateLocked(ep); err != nil {
			return err
		}
	}
	return nil
}

// Descriptor returns a copy of the descriptor currently installed at ep.
func (t *Table) Descriptor(ep int) (Descriptor, error) {
	if err := checkEP(ep); err != nil {
		return Descriptor{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.eps[ep], nil
}

// MemWindow returns a MemoryWindow over the region backing a Memory
// endpoint, whose ReadAt/WriteAt enforce bounds and the endpoint's perm.
func (t *Table) MemWindow(ep int) (*MemoryWindow, error) {
	if err := checkEP(ep); err != nil {
		return nil, err
	}
	t.mu.Lock()
	d := t.eps[ep]
	t.mu.Unlock()
	if d.Kind != KindMemory {
		return nil, api.ErrInvalidArgs
	}
	region, err := t.channels.GetMem(d.Mem.channel)
	if err != nil {
		return nil, err
	}
	return &MemoryWindow{region: region, perm: d.Mem.Perm}, nil
}

// Send resolves ep's send descriptor and pushes payload, routing through
// the bridge when the destination tile is not local. replyEP and
// replyLabel are the per-message reply-routing fields the DTU stamps
// into the header (the sender's own receive endpoint for replies, and
// the tag the receiver must quote back).
func (t *Table) Send(ep int, payload []byte, flags uint8, replyEP uint8, replyLabel uint64) error {
	if err := checkEP(ep); err != nil {
		return err
	}
	t.mu.Lock()
	d := t.eps[ep]
	tileID := t.tileID
	vpeID := t.vpeID
	remote := t.remote
	t.mu.Unlock()

	if d.Kind != KindSend {
		return api.ErrInvalidArgs
	}

	params := ring.SendParams{
		SenderTile: tileID,
		SenderEP:   uint8(ep),
		SenderVPE:  vpeID,
		ReplyEP:    replyEP,
		Label:      d.Send.Label,
		ReplyLabel: replyLabel,
		Flags:      flags,
	}

	if d.Send.destRing != nil {
		return d.Send.destRing.Send(params, payload)
	}
	if remote == nil {
		return api.ErrNoDest
	}
	return remote.SendRemote(d.Send.DestTile, params, payload)
}

// Fetch returns the next message on ep's receive ring without advancing
// it.
func (t *Table) Fetch(ep int) (ring.Message, bool, error) {
	if err := checkEP(ep); err != nil {
		return ring.Message{}, false, err
	}
	t.mu.Lock()
	d := t.eps[ep]
	t.mu.Unlock()
	if d.Kind != KindReceive {
		return ring.Message{}, false, api.ErrInvalidArgs
	}
	r, err := t.channels.GetRing(d.Recv.channel)
	if err != nil {
		return ring.Message{}, false, err
	}
	msg, ok := r.Fetch()
	return msg, ok, nil
}

// Ack advances ep's receive ring past the last fetched message.
func (t *Table) Ack(ep int) error {
	if err := checkEP(ep); err != nil {
		return err
	}
	t.mu.Lock()
	d := t.eps[ep]
	t.mu.Unlock()
	if d.Kind != KindReceive {
		return api.ErrInvalidArgs
	}
	r, err := t.channels.GetRing(d.Recv.channel)
	if err != nil {
		return err
	}
	r.Ack()
	return nil
}

// Reply sends flags.reply=1 back to the sender of orig, quoting
// orig.ReplyLabel, over a send endpoint drawn from the reserved
// reply-EP range (allocating one if none already targets that
// destination).
func (t *Table) Reply(orig wire.Header, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	destTile := orig.SenderTile
	destEP := orig.ReplyEP

	for ep := ReplyEPBase; ep < EPCount; ep++ {
		d := t.eps[ep]
		if d.Kind == KindSend && d.Send.DestTile == destTile && d.Send.DestEP == destEP {
			return t.sendFromDescLocked(ep, orig, payload)
		}
	}

	for ep := ReplyEPBase; ep < EPCount; ep++ {
		if t.eps[ep].Kind == KindInvalid {
			var destRing *ring.Ring
			if destTile < t.localTileCount {
				if t.resolver == nil {
					return api.ErrNoDest
				}
				r, ok := t.resolver.ResolveRecvRing(destTile, destEP)
				if !ok {
					return api.ErrNoDest
				}
				destRing = r
			}
			ch, err := t.allocMsgChannel()
			if err != nil {
				return err
			}
			t.eps[ep] = Descriptor{
				Kind: KindSend,
				Send: SendDesc{
					DestTile: destTile,
					DestEP:   destEP,
					Label:    orig.ReplyLabel,
					channel:  ch,
					destRing: destRing,
				},
			}
			return t.sendFromDescLocked(ep, orig, payload)
		}
	}
	return api.ErrNoSpace
}

func (t *Table) sendFromDescLocked(ep int, orig wire.Header, payload []byte) error {
	d := t.eps[ep].Send
	params := ring.SendParams{
		SenderTile: t.tileID,
		SenderEP:   uint8(ep),
		SenderVPE:  t.vpeID,
		ReplyEP:    orig.SenderEP,
		Label:      orig.ReplyLabel,
		ReplyLabel: 0,
		Flags:      wire.FlagReply,
	}
	if d.destRing != nil {
		return d.destRing.Send(params, payload)
	}
	if t.remote == nil {
		return api.ErrNoDest
	}
	return t.remote.SendRemote(d.DestTile, params, payload)
}
