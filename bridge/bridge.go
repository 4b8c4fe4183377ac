// File: bridge/bridge.go
// Package bridge
// License: Apache-2.0
//
// Bridge tunnels DTU messages between kernels on different nodes over
// best-effort UDP: an outbound ring per destination node (kernel →
// bridge, drained and framed onto the wire) and one shared inbound ring
// (bridge → kernel, fed by a length-checked, best-effort UDP receive
// path). Both rings are the same wire-exact ring.Ring a tile-to-tile
// channel uses, backed by a plain []byte region both sides of the
// kernel/bridge boundary hold a reference to in this single-process
// emulation.

package bridge

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/momentics/vdtu/adapters"
	"github.com/momentics/vdtu/affinity"
	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/internal/concurrency"
	"github.com/momentics/vdtu/ring"
	"github.com/momentics/vdtu/wire"
)

// datagramSlotSize is large enough to hold the 25-byte header plus a
// 1400-byte payload, rounded up to the next power of two since
// ring.Init requires a power-of-two slot size.
const datagramSlotSize = 2048

// defaultRingSlots is the slot count used for every outbound/inbound
// ring this package creates.
const defaultRingSlots = 64

// rxQueueCapacity bounds the hand-off queue between the transport's
// receive callback and the bridge's own poll loop.
const rxQueueCapacity = 256

var _ api.PollSource = (*Bridge)(nil)

// rawDatagram is one received-but-not-yet-validated UDP payload.
type rawDatagram struct {
	srcIP   string
	port    uint16
	payload []byte
}

// rxQueue is satisfied structurally by the value
// concurrency.NewLockFreeQueue[rawDatagram] returns; that type is
// unexported by the concurrency package, so an interface is how this
// package reaches it without needing to name the type.
type rxQueue interface {
	Enqueue(rawDatagram) bool
	Dequeue() (rawDatagram, bool)
}

// nodeLink is one destination node's outbound channel: the wire-exact
// ring the local kernel sends into, plus the resolved address this
// bridge drains it toward.
type nodeLink struct {
	destIP   string
	destPort uint16
	outbound *ring.Ring
}

// Bridge is one node's inter-node tunnel endpoint.
type Bridge struct {
	localNode uint16
	nodes     *affinity.NodeTable
	transport adapters.DatagramTransport
	log       *log.Logger

	mu    sync.Mutex
	links map[uint16]*nodeLink

	inbound *ring.Ring
	rx      rxQueue

	inboundDrops  uint64
	outboundDrops uint64
}

// New constructs a Bridge for localNode, routing outbound traffic via
// nodes and transport. The bridge registers itself as transport's
// receive callback.
func New(localNode uint16, nodes *affinity.NodeTable, transport adapters.DatagramTransport) (*Bridge, error) {
	region := make([]byte, ring.TotalSize(defaultRingSlots, datagramSlotSize))
	inbound, err := ring.Init(region, defaultRingSlots, datagramSlotSize)
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		localNode: localNode,
		nodes:     nodes,
		transport: transport,
		log:       log.New(log.Writer(), "[bridge] ", log.LstdFlags),
		links:     make(map[uint16]*nodeLink),
		inbound:   inbound,
		rx:        concurrency.NewLockFreeQueue[rawDatagram](rxQueueCapacity),
	}
	transport.SetRecvCallback(b.onDatagram)
	return b, nil
}

// Inbound returns the ring the local kernel fetches delivered remote
// messages from.
func (b *Bridge) Inbound() *ring.Ring { return b.inbound }

// InboundDrops reports the number of inbound datagrams dropped for
// failing length validation or finding the inbound ring full.
func (b *Bridge) InboundDrops() uint64 { return atomic.LoadUint64(&b.inboundDrops) }

// OutboundDrops reports the number of messages SendRemote could not push
// onto an outbound ring (ring full, or too large for a slot).
func (b *Bridge) OutboundDrops() uint64 { return atomic.LoadUint64(&b.outboundDrops) }

// onDatagram is the transport's receive callback. It only hands the raw
// bytes to the rx queue: validation and the single-producer push into
// inbound happen on Poll, which may run on a different goroutine than
// whatever the transport's own read loop uses.
func (b *Bridge) onDatagram(srcIP string, port uint16, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	if !b.rx.Enqueue(rawDatagram{srcIP: srcIP, port: port, payload: cp}) {
		atomic.AddUint64(&b.inboundDrops, 1)
	}
}

// Poll implements api.PollSource: it drains every datagram currently
// queued by onDatagram, validates and pushes each onto inbound, then
// drains every destination node's outbound ring onto the wire.
func (b *Bridge) Poll() (bool, error) {
	didWork := false

	for {
		dg, ok := b.rx.Dequeue()
		if !ok {
			break
		}
		didWork = true
		b.handleInbound(dg)
	}

	b.mu.Lock()
	links := make([]*nodeLink, 0, len(b.links))
	for _, l := range b.links {
		links = append(links, l)
	}
	b.mu.Unlock()

	for _, l := range links {
		if b.drainOutbound(l) {
			didWork = true
		}
	}

	return didWork, nil
}

// handleInbound implements the inbound pipeline of spec §4.5: verify
// length, decode, and push into inbound, dropping and counting on any
// failure.
func (b *Bridge) handleInbound(dg rawDatagram) {
	if len(dg.payload) < wire.HeaderSize {
		atomic.AddUint64(&b.inboundDrops, 1)
		return
	}
	h, payload, err := wire.DecodeDatagram(dg.payload)
	if err != nil {
		atomic.AddUint64(&b.inboundDrops, 1)
		return
	}
	params := ring.SendParams{
		SenderTile: h.SenderTile,
		SenderEP:   h.SenderEP,
		SenderVPE:  h.SenderVPE,
		ReplyEP:    h.ReplyEP,
		Label:      h.Label,
		ReplyLabel: h.ReplyLabel,
		Flags:      h.Flags,
	}
	if err := b.inbound.Send(params, payload); err != nil {
		atomic.AddUint64(&b.inboundDrops, 1)
	}
}

// drainOutbound implements the outbound pipeline of spec §4.5: drain
// one node's outbound ring and frame+send each message as one UDP
// datagram. Returns whether it did any work.
func (b *Bridge) drainOutbound(l *nodeLink) bool {
	didWork := false
	for {
		msg, ok := l.outbound.Fetch()
		if !ok {
			break
		}
		didWork = true
		framed, err := wire.EncodeDatagram(msg.Header, msg.Payload)
		if err == nil {
			if err := b.transport.SendDatagram(l.destIP, l.destPort, framed); err != nil {
				b.log.Printf("send to %s:%d: %v", l.destIP, l.destPort, err)
			}
		}
		l.outbound.Ack()
	}
	return didWork
}

// SendRemote implements endpoint.RemoteSender: it pushes onto the
// outbound ring dedicated to destTile's node, creating that node's link
// (and resolving its address) on first use.
func (b *Bridge) SendRemote(destTile uint16, p ring.SendParams, payload []byte) error {
	l, err := b.linkFor(destTile)
	if err != nil {
		return err
	}
	if err := l.outbound.Send(p, payload); err != nil {
		atomic.AddUint64(&b.outboundDrops, 1)
		return err
	}
	return nil
}

func (b *Bridge) linkFor(destTile uint16) (*nodeLink, error) {
	nodeID := uint16(b.nodes.NodeOf(int(destTile)))

	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.links[nodeID]; ok {
		return l, nil
	}

	addr, err := b.nodes.AddrOf(int(nodeID))
	if err != nil {
		return nil, err
	}
	host, port, err := adapters.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	region := make([]byte, ring.TotalSize(defaultRingSlots, datagramSlotSize))
	r, err := ring.Init(region, defaultRingSlots, datagramSlotSize)
	if err != nil {
		return nil, err
	}
	l := &nodeLink{destIP: host, destPort: port, outbound: r}
	b.links[nodeID] = l
	return l, nil
}

// Close releases the underlying transport.
func (b *Bridge) Close() error {
	return b.transport.Close()
}
