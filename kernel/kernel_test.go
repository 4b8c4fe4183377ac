// File: kernel/kernel_test.go
// License: Apache-2.0

package kernel

import (
	"testing"
	"time"
)

func newTestKernel(t *testing.T, localTileCount uint16) *Kernel {
	t.Helper()
	return New(1, localTileCount, time.Millisecond, nil, nil)
}

// TestLocalSendFetchReply wires two tiles under one kernel through the
// control-plane Kernel methods, then drives a data-plane send/fetch and
// a reply, exercising the same path scenario 1 exercises directly
// against ring.Ring but through the full Kernel/Tile/endpoint stack.
func TestLocalSendFetchReply(t *testing.T) {
	k := newTestKernel(t, 2)
	if _, err := k.NewTile(0, nil); err != nil {
		t.Fatalf("new tile 0: %v", err)
	}
	if _, err := k.NewTile(1, nil); err != nil {
		t.Fatalf("new tile 1: %v", err)
	}

	if _, err := k.ConfigRecv(1, 0, 2, 9, 0); err != nil {
		t.Fatalf("config_recv (receiver): %v", err)
	}
	if _, err := k.ConfigRecv(0, 5, 2, 9, 0); err != nil {
		t.Fatalf("config_recv (sender's reply endpoint): %v", err)
	}
	if _, err := k.ConfigSend(0, 0, 1, 0, 0, 64, 0xDEADBEEF, 0); err != nil {
		t.Fatalf("config_send: %v", err)
	}

	sender, err := k.Tile(0)
	if err != nil {
		t.Fatal(err)
	}
	receiver, err := k.Tile(1)
	if err != nil {
		t.Fatal(err)
	}

	if err := sender.Endpoints.Send(0, []byte("HELLO_VPE"), 0, 5, 0xCAFE); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg, ok, err := receiver.Endpoints.Fetch(0)
	if err != nil || !ok {
		t.Fatalf("fetch: ok=%v err=%v", ok, err)
	}
	if msg.Header.Label != 0xDEADBEEF || string(msg.Payload) != "HELLO_VPE" {
		t.Fatalf("unexpected message: %+v %q", msg.Header, msg.Payload)
	}
	if err := receiver.Endpoints.Ack(0); err != nil {
		t.Fatalf("ack: %v", err)
	}

	if _, err := k.ConfigSend(1, 15, 0, msg.Header.ReplyEP, 0, 64, 0, 0); err != nil {
		t.Fatalf("config reply send: %v", err)
	}
	if err := receiver.Endpoints.Reply(msg.Header, []byte("ack")); err != nil {
		t.Fatalf("reply: %v", err)
	}
}

// TestWakeupPEInterruptsIdle verifies WakeupPE's OS-level signal is
// observed by the tile's own wakeup source on the very next poll.
func TestWakeupPEInterruptsIdle(t *testing.T) {
	k := newTestKernel(t, 1)
	tile, err := k.NewTile(0, nil)
	if err != nil {
		t.Fatal(err)
	}

	src := &wakeupSource{wake: tile.wake}
	if did, _ := src.Poll(); did {
		t.Fatal("expected no pending wakeup before Signal")
	}
	if err := k.WakeupPE(0); err != nil {
		t.Fatalf("wakeup_pe: %v", err)
	}
	if did, _ := src.Poll(); !did {
		t.Fatal("expected Poll to observe the raised wakeup")
	}
	if did, _ := src.Poll(); did {
		t.Fatal("expected wakeup to be drained after one Poll")
	}
}

func TestGetEPCount(t *testing.T) {
	k := newTestKernel(t, 1)
	if got := k.GetEPCount(); got != 16 {
		t.Fatalf("GetEPCount() = %d, want 16", got)
	}
}

func TestBootstrapInstallsVPE1Cap(t *testing.T) {
	k := newTestKernel(t, 1)
	if _, err := k.NewTile(0, nil); err != nil {
		t.Fatal(err)
	}
	if err := Bootstrap(k, 0); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	tile, _ := k.Tile(0)
	vpe0 := tile.vpeTable(VPE0)
	c := vpe0.Get(VPE1Selector)
	if c == nil {
		t.Fatal("expected VPE1 capability installed at VPE0.sel[2]")
	}
	if c.Payload.(uint16) != VPE1 {
		t.Fatalf("VPE1 cap payload = %v, want %d", c.Payload, VPE1)
	}
}
