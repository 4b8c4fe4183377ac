// File: ring/ring.go
// License: Apache-2.0
//
// Wire-exact single-producer/single-consumer ring buffer over a plain
// []byte region. The control block is overlaid directly onto the region
// with unsafe.Pointer, the same technique shm.RingBuffer uses to overlay
// a Go struct onto an mmap'd byte slice; head/tail are mutated through
// sync/atomic rather than a seqlock since only one field moves per side.

package ring

import (
	"sync/atomic"
	"unsafe"

	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/wire"
)

// CtrlSize is the fixed size of the ring control block in bytes.
const CtrlSize = 64

// ctrl mirrors the 64-byte control block layout: head (written only by
// the producer) and tail (written only by the consumer) are adjacent
// words, followed by the immutable geometry and padding up to 64 bytes,
// matching the producer/consumer field split spec.md requires.
type ctrl struct {
	head      uint64
	tail      uint64
	slotCount uint64
	slotSize  uint64
	slotMask  uint64
	_         [24]byte // pad to 64 bytes
}

func init() {
	if unsafe.Sizeof(ctrl{}) != CtrlSize {
		panic("ring: control block size mismatch")
	}
}

// Message is a view onto one fetched slot: the decoded header plus a
// slice aliasing the payload bytes still inside the ring region. The
// slice is only valid until the next Ack.
type Message struct {
	Header  wire.Header
	Payload []byte
}

// Ring is a handle onto a shared []byte region holding one SPSC queue.
// The zero value is not usable; construct with Init or Attach.
type Ring struct {
	region []byte
	c      *ctrl
}

func ctrlAt(region []byte) *ctrl {
	return (*ctrl)(unsafe.Pointer(&region[0]))
}

func isPowerOfTwo(n uint64) bool { return n != 0 && n&(n-1) == 0 }

// TotalSize returns the byte size a region must have to hold a ring with
// the given slot_count and slot_size.
func TotalSize(slotCount, slotSize uint64) uint64 {
	return CtrlSize + slotCount*slotSize
}

// Init formats region as a freshly created ring: slotCount must be a
// power of two >= 2; slotSize must be a power of two >= wire.HeaderSize.
// The region must be at least TotalSize(slotCount, slotSize) bytes.
func Init(region []byte, slotCount, slotSize uint64) (*Ring, error) {
	if region == nil {
		return nil, api.ErrInvalidArgs
	}
	if slotCount < 2 || !isPowerOfTwo(slotCount) {
		return nil, api.ErrInvalidArgs
	}
	if slotSize < wire.HeaderSize || !isPowerOfTwo(slotSize) {
		return nil, api.ErrInvalidArgs
	}
	if uint64(len(region)) < TotalSize(slotCount, slotSize) {
		return nil, api.ErrInvalidArgs
	}

	for i := range region[:CtrlSize] {
		region[i] = 0
	}
	c := ctrlAt(region)
	c.slotCount = slotCount
	c.slotSize = slotSize
	c.slotMask = slotCount - 1
	atomic.StoreUint64(&c.head, 0)
	atomic.StoreUint64(&c.tail, 0)

	return &Ring{region: region, c: c}, nil
}

// Attach opens region as a read/write handle onto an already-initialized
// ring, treating the existing control block fields as authoritative. The
// ring is considered initialized once slot_count is non-zero.
func Attach(region []byte) (*Ring, error) {
	if region == nil || uint64(len(region)) < CtrlSize {
		return nil, api.ErrInvalidArgs
	}
	c := ctrlAt(region)
	if atomic.LoadUint64(&c.slotCount) == 0 {
		return nil, api.ErrInvalidArgs
	}
	return &Ring{region: region, c: c}, nil
}

// SlotCount returns the ring's immutable slot count.
func (r *Ring) SlotCount() uint64 { return r.c.slotCount }

// SlotSize returns the ring's immutable slot size.
func (r *Ring) SlotSize() uint64 { return r.c.slotSize }

func (r *Ring) slotOffset(idx uint64) uint64 {
	return CtrlSize + (idx&r.c.slotMask)*r.c.slotSize
}

// IsEmpty reports whether the ring currently holds no messages.
func (r *Ring) IsEmpty() bool {
	return atomic.LoadUint64(&r.c.head) == atomic.LoadUint64(&r.c.tail)
}

// IsFull reports whether the ring has no free slot for another Send.
func (r *Ring) IsFull() bool {
	head := atomic.LoadUint64(&r.c.head)
	tail := atomic.LoadUint64(&r.c.tail)
	return ((head + 1) & r.c.slotMask) == (tail & r.c.slotMask)
}

// Available returns the number of messages currently queued.
func (r *Ring) Available() uint64 {
	head := atomic.LoadUint64(&r.c.head)
	tail := atomic.LoadUint64(&r.c.tail)
	return (head - tail) & r.c.slotMask
}

// Free returns the number of slots free for Send; always
// slotCount-1-Available() since one slot is never used to disambiguate
// full from empty.
func (r *Ring) Free() uint64 {
	return (r.c.slotCount - 1) - r.Available()
}

// SendParams bundles every field the DTU auto-fills into the header on
// send, mirroring the producer-supplied arguments of the original send
// operation.
type SendParams struct {
	SenderTile uint16
	SenderEP   uint8
	SenderVPE  uint16
	ReplyEP    uint8
	Label      uint64
	ReplyLabel uint64
	Flags      uint8
}

// Send writes one message into the next free slot. Returns api.ErrFull
// if the ring has no free slot, api.ErrE2Big if the header plus payload
// does not fit in one slot.
func (r *Ring) Send(p SendParams, payload []byte) error {
	if r.IsFull() {
		return api.ErrFull
	}
	if uint64(wire.HeaderSize+len(payload)) > r.c.slotSize {
		return api.ErrE2Big
	}

	head := atomic.LoadUint64(&r.c.head)
	off := r.slotOffset(head)
	slot := r.region[off : off+r.c.slotSize]

	for i := range slot {
		slot[i] = 0
	}

	h := wire.Header{
		Flags:      p.Flags,
		SenderTile: p.SenderTile,
		SenderEP:   p.SenderEP,
		ReplyEP:    p.ReplyEP,
		Length:     uint16(len(payload)),
		SenderVPE:  p.SenderVPE,
		Label:      p.Label,
		ReplyLabel: p.ReplyLabel,
	}
	if err := wire.Encode(slot, h); err != nil {
		return err
	}
	copy(slot[wire.HeaderSize:], payload)

	// Publication fence: payload and header writes above must be visible
	// before head advances. atomic.StoreUint64 provides a release store
	// on every architecture Go supports.
	atomic.StoreUint64(&r.c.head, (head+1)&r.c.slotMask)
	return nil
}

// Fetch returns the message at the current tail without advancing it.
// The second return is false if the ring is empty.
func (r *Ring) Fetch() (Message, bool) {
	head := atomic.LoadUint64(&r.c.head)
	tail := atomic.LoadUint64(&r.c.tail)
	if head == tail {
		return Message{}, false
	}
	off := r.slotOffset(tail)
	slot := r.region[off : off+r.c.slotSize]
	h, err := wire.Decode(slot)
	if err != nil {
		return Message{}, false
	}
	return Message{Header: h, Payload: slot[wire.HeaderSize : wire.HeaderSize+int(h.Length)]}, true
}

// Ack advances tail past the slot most recently returned by Fetch. A
// no-op if the ring is empty.
func (r *Ring) Ack() {
	head := atomic.LoadUint64(&r.c.head)
	tail := atomic.LoadUint64(&r.c.tail)
	if head == tail {
		return
	}
	atomic.StoreUint64(&r.c.tail, (tail+1)&r.c.slotMask)
}
