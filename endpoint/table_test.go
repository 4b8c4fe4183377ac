package endpoint

import (
	"testing"

	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/ring"
)

// Scenario 2: Channel exhaustion.
func TestChannelExhaustion(t *testing.T) {
	tbl := NewTable(0, 1, nil, nil)

	for i := 0; i < 8; i++ {
		if _, err := tbl.ConfigRecv(i, 11, 9, 0); err != nil {
			t.Fatalf("config_recv %d: %v", i, err)
		}
	}
	if _, err := tbl.ConfigRecv(8, 11, 9, 0); err != api.ErrNoSpace {
		t.Fatalf("want ErrNoSpace on 9th config_recv, got %v", err)
	}

	if err := tbl.InvalidateEP(3); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.ConfigRecv(9, 11, 9, 0); err != nil {
		t.Fatalf("expected reuse of freed channel, got %v", err)
	}
}

func TestConfigSendToUnconfiguredDestFails(t *testing.T) {
	tbl := NewTable(0, 4, &stubResolver{}, nil)
	if _, err := tbl.ConfigSend(0, 1, 2, 0, 64, 0, 0); err != api.ErrNoDest {
		t.Fatalf("want ErrNoDest, got %v", err)
	}
	d, _ := tbl.Descriptor(0)
	if d.Kind != KindInvalid {
		t.Fatalf("expected no descriptor installed, got %+v", d)
	}
}

type stubResolver struct{}

func (s *stubResolver) ResolveRecvRing(destTile uint16, destEP uint8) (*ring.Ring, bool) {
	return nil, false
}

func TestInvalidateEPsSweep(t *testing.T) {
	tbl := NewTable(0, 1, nil, nil)
	for i := 0; i < 4; i++ {
		if _, err := tbl.ConfigRecv(i, 11, 9, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := tbl.InvalidateEPs(2); err != nil {
		t.Fatal(err)
	}
	for i := 2; i < EPCount; i++ {
		d, _ := tbl.Descriptor(i)
		if d.Kind != KindInvalid {
			t.Fatalf("ep %d still configured after sweep", i)
		}
	}
	d, _ := tbl.Descriptor(0)
	if d.Kind != KindReceive {
		t.Fatal("ep 0 should remain configured")
	}
}

func TestOperationOnInvalidEPReturnsInvalidArgs(t *testing.T) {
	tbl := NewTable(0, 1, nil, nil)
	if err := tbl.Send(0, []byte("x"), 0, 0, 0); err != api.ErrInvalidArgs {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
	if err := tbl.Ack(0); err != api.ErrInvalidArgs {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
}

// registryResolver dispatches a (destTile, destEP) lookup to the right
// tile's table, standing in for the kernel-level registry two in-process
// tiles would share.
type registryResolver struct {
	tiles map[uint16]*Table
}

func (r *registryResolver) ResolveRecvRing(destTile uint16, destEP uint8) (*ring.Ring, bool) {
	tbl, ok := r.tiles[destTile]
	if !ok {
		return nil, false
	}
	return tbl.LookupRecvRing(destEP)
}

func TestSendFetchReply(t *testing.T) {
	reg := &registryResolver{tiles: map[uint16]*Table{}}
	sender := NewTable(0, 2, reg, nil)
	receiver := NewTable(1, 2, reg, nil)
	reg.tiles[0] = sender
	reg.tiles[1] = receiver

	// Sender's own receive endpoint for replies.
	if _, err := sender.ConfigRecv(1, 4, 9, 0); err != nil {
		t.Fatalf("config_recv (sender reply ep): %v", err)
	}
	if _, err := receiver.ConfigRecv(0, 4, 9, 0); err != nil {
		t.Fatalf("config_recv: %v", err)
	}
	if _, err := sender.ConfigSend(0, 1, 0, 0, 64, 0xABCD, 0); err != nil {
		t.Fatalf("config_send: %v", err)
	}

	if err := sender.Send(0, []byte("ping"), 0, 1, 0x1234); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg, ok, err := receiver.Fetch(0)
	if err != nil || !ok {
		t.Fatalf("fetch: ok=%v err=%v", ok, err)
	}
	if msg.Header.Label != 0xABCD {
		t.Fatalf("label = %#x", msg.Header.Label)
	}
	if msg.Header.ReplyLabel != 0x1234 {
		t.Fatalf("reply_label = %#x, want 0x1234", msg.Header.ReplyLabel)
	}
	if err := receiver.Ack(0); err != nil {
		t.Fatal(err)
	}

	if err := receiver.Reply(msg.Header, []byte("pong")); err != nil {
		t.Fatalf("reply: %v", err)
	}

	reply, ok, err := sender.Fetch(1)
	if err != nil || !ok {
		t.Fatalf("fetch reply: ok=%v err=%v", ok, err)
	}
	if !reply.Header.IsReply() {
		t.Fatal("expected flags.reply = 1")
	}
	if reply.Header.Label != 0x1234 {
		t.Fatalf("reply label = %#x, want original reply_label 0x1234", reply.Header.Label)
	}
}
