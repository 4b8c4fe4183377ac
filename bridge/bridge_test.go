// File: bridge/bridge_test.go
// License: Apache-2.0

package bridge

import (
	"testing"

	"github.com/momentics/vdtu/affinity"
	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/ring"
)

const (
	labelPing uint64 = 0x50494E47
	labelPong uint64 = 0x504F4E47
)

// wireTwoBridges builds node A (tile 0) and node B (tile 1), one tile
// per node, with each side's transport delivering straight into the
// other's onDatagram — a loopback network for the test.
func wireTwoBridges(t *testing.T) (a, b *Bridge) {
	t.Helper()

	nodesA := affinity.NewNodeTable(1, 0)
	nodesA.SetAddr(1, "127.0.0.1:9001")
	nodesB := affinity.NewNodeTable(1, 1)
	nodesB.SetAddr(0, "127.0.0.1:9000")

	transportA := &api.MockDatagramTransport{}
	transportB := &api.MockDatagramTransport{}

	var err error
	a, err = New(0, nodesA, transportA)
	if err != nil {
		t.Fatalf("new bridge a: %v", err)
	}
	b, err = New(1, nodesB, transportB)
	if err != nil {
		t.Fatalf("new bridge b: %v", err)
	}

	transportA.SendFunc = func(destIP string, port uint16, payload []byte) error {
		transportB.Deliver("127.0.0.1", 9000, payload)
		return nil
	}
	transportB.SendFunc = func(destIP string, port uint16, payload []byte) error {
		transportA.Deliver("127.0.0.1", 9001, payload)
		return nil
	}

	return a, b
}

// TestCrossNodePingPong exercises spec scenario 5 end to end through
// the bridge alone (no kernel): node A sends a message labeled "ping"
// to node B's tile, B observes it in its inbound ring and replies
// labeled "pong", A observes the reply in its own inbound ring.
func TestCrossNodePingPong(t *testing.T) {
	a, b := wireTwoBridges(t)

	if err := a.SendRemote(1, ring.SendParams{SenderTile: 0, Label: labelPing}, []byte("ping")); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	if _, err := a.Poll(); err != nil {
		t.Fatalf("poll a (drain outbound): %v", err)
	}
	if _, err := b.Poll(); err != nil {
		t.Fatalf("poll b (drain rx into inbound): %v", err)
	}

	msg, ok := b.Inbound().Fetch()
	if !ok {
		t.Fatal("node b did not receive the ping")
	}
	if msg.Label != labelPing {
		t.Fatalf("label = %#x, want %#x", msg.Label, labelPing)
	}
	b.Inbound().Ack()

	if err := b.SendRemote(0, ring.SendParams{SenderTile: 1, Label: labelPong}, []byte("pong")); err != nil {
		t.Fatalf("send pong: %v", err)
	}
	if _, err := b.Poll(); err != nil {
		t.Fatalf("poll b (drain outbound): %v", err)
	}
	if _, err := a.Poll(); err != nil {
		t.Fatalf("poll a (drain rx into inbound): %v", err)
	}

	reply, ok := a.Inbound().Fetch()
	if !ok {
		t.Fatal("node a did not receive the pong reply")
	}
	if reply.Label != labelPong {
		t.Fatalf("reply label = %#x, want %#x", reply.Label, labelPong)
	}
}

// TestMessageSurvivesRoundTrip checks the outbound-to-inbound property:
// whatever payload and header fields go into SendRemote come out of the
// peer's inbound ring unchanged.
func TestMessageSurvivesRoundTrip(t *testing.T) {
	a, b := wireTwoBridges(t)

	payload := []byte("exact payload bytes")
	params := ring.SendParams{SenderTile: 0, SenderEP: 3, ReplyEP: 7, Label: 42, ReplyLabel: 99}

	if err := a.SendRemote(1, params, payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := a.Poll(); err != nil {
		t.Fatalf("poll a: %v", err)
	}
	if _, err := b.Poll(); err != nil {
		t.Fatalf("poll b: %v", err)
	}

	msg, ok := b.Inbound().Fetch()
	if !ok {
		t.Fatal("message did not arrive")
	}
	if string(msg.Payload) != string(payload) {
		t.Fatalf("payload = %q, want %q", msg.Payload, payload)
	}
	if msg.Header.SenderEP != 3 || msg.Header.ReplyEP != 7 || msg.Header.Label != 42 || msg.Header.ReplyLabel != 99 {
		t.Fatalf("header fields not preserved: %+v", msg.Header)
	}
}

// TestInducedPacketLossDoesNotCorruptState verifies that a transport
// failure on send drops that datagram rather than corrupting the
// outbound ring or panicking; a subsequent send still succeeds.
func TestInducedPacketLossDoesNotCorruptState(t *testing.T) {
	a, b := wireTwoBridges(t)

	transportA := a.transport.(*api.MockDatagramTransport)
	failNext := true
	realSend := transportA.SendFunc
	transportA.SendFunc = func(destIP string, port uint16, payload []byte) error {
		if failNext {
			failNext = false
			return errSimulatedLoss
		}
		return realSend(destIP, port, payload)
	}

	if err := a.SendRemote(1, ring.SendParams{SenderTile: 0, Label: 1}, []byte("lost")); err != nil {
		t.Fatalf("send 1: %v", err)
	}
	if _, err := a.Poll(); err != nil {
		t.Fatalf("poll a (lossy send): %v", err)
	}
	if _, err := b.Poll(); err != nil {
		t.Fatalf("poll b: %v", err)
	}
	if _, ok := b.Inbound().Fetch(); ok {
		t.Fatal("dropped datagram should not have arrived")
	}

	if err := a.SendRemote(1, ring.SendParams{SenderTile: 0, Label: 2}, []byte("delivered")); err != nil {
		t.Fatalf("send 2: %v", err)
	}
	if _, err := a.Poll(); err != nil {
		t.Fatalf("poll a (good send): %v", err)
	}
	if _, err := b.Poll(); err != nil {
		t.Fatalf("poll b: %v", err)
	}
	msg, ok := b.Inbound().Fetch()
	if !ok {
		t.Fatal("second send should have arrived after the first was dropped")
	}
	if msg.Label != 2 {
		t.Fatalf("label = %d, want 2", msg.Label)
	}
}

// TestShortDatagramDropped verifies the inbound length check from
// spec §4.5: anything shorter than a header is dropped and counted,
// never pushed onto inbound.
func TestShortDatagramDropped(t *testing.T) {
	a, _ := wireTwoBridges(t)

	before := a.InboundDrops()
	a.onDatagram("127.0.0.1", 9001, []byte{1, 2, 3})
	if _, err := a.Poll(); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if a.InboundDrops() != before+1 {
		t.Fatalf("InboundDrops = %d, want %d", a.InboundDrops(), before+1)
	}
	if !a.Inbound().IsEmpty() {
		t.Fatal("short datagram must not reach the inbound ring")
	}
}

type simulatedLossError struct{}

func (simulatedLossError) Error() string { return "simulated packet loss" }

var errSimulatedLoss = simulatedLossError{}
