package ring

import (
	"testing"

	"github.com/momentics/vdtu/api"
)

func newTestRing(t *testing.T, slotCount, slotSize uint64) *Ring {
	t.Helper()
	region := make([]byte, TotalSize(slotCount, slotSize))
	r, err := Init(region, slotCount, slotSize)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func TestTotalSize(t *testing.T) {
	if got := TotalSize(4, 512); got != 64+4*512 {
		t.Fatalf("TotalSize = %d", got)
	}
}

func TestInitRejectsBadSlotCount(t *testing.T) {
	region := make([]byte, TotalSize(8, 512))
	for _, n := range []uint64{1, 3} {
		if _, err := Init(region, n, 512); err != api.ErrInvalidArgs {
			t.Fatalf("slot_count=%d: want ErrInvalidArgs, got %v", n, err)
		}
	}
}

func TestInitRejectsBadSlotSize(t *testing.T) {
	region := make([]byte, TotalSize(8, 512))
	for _, s := range []uint64{8, 300} {
		if _, err := Init(region, 8, s); err != api.ErrInvalidArgs {
			t.Fatalf("slot_size=%d: want ErrInvalidArgs, got %v", s, err)
		}
	}
}

func TestInitRejectsNilRegion(t *testing.T) {
	if _, err := Init(nil, 4, 512); err != api.ErrInvalidArgs {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
}

// Scenario 1: Ring smoke.
func TestRingSmoke(t *testing.T) {
	r := newTestRing(t, 4, 512)

	err := r.Send(SendParams{
		SenderTile: 0,
		SenderEP:   0,
		SenderVPE:  0,
		ReplyEP:    1,
		Label:      0xDEADBEEF,
		ReplyLabel: 0xCAFE,
		Flags:      0,
	}, []byte("HELLO_VPE"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, ok := r.Fetch()
	if !ok {
		t.Fatal("Fetch: expected a message")
	}
	if msg.Header.Label != 0xDEADBEEF {
		t.Errorf("label = %#x, want 0xDEADBEEF", msg.Header.Label)
	}
	if msg.Header.Length != 9 {
		t.Errorf("length = %d, want 9", msg.Header.Length)
	}
	if string(msg.Payload) != "HELLO_VPE" {
		t.Errorf("payload = %q, want HELLO_VPE", msg.Payload)
	}

	r.Ack()
	if !r.IsEmpty() {
		t.Error("expected IsEmpty after ack")
	}
}

func TestFullAfterSlotCountMinusOneSends(t *testing.T) {
	const slotCount = 8
	r := newTestRing(t, slotCount, 64)
	for i := 0; i < slotCount-1; i++ {
		if err := r.Send(SendParams{}, nil); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if !r.IsFull() {
		t.Fatal("expected IsFull")
	}
	if err := r.Send(SendParams{}, nil); err != api.ErrFull {
		t.Fatalf("want ErrFull, got %v", err)
	}
}

func TestE2Big(t *testing.T) {
	r := newTestRing(t, 4, 32)
	payload := make([]byte, 32) // 25 + 32 > 32
	if err := r.Send(SendParams{}, payload); err != api.ErrE2Big {
		t.Fatalf("want ErrE2Big, got %v", err)
	}
}

func TestAvailablePlusFreeInvariant(t *testing.T) {
	const slotCount = 16
	r := newTestRing(t, slotCount, 64)

	check := func() {
		if got := r.Available() + r.Free(); got != slotCount-1 {
			t.Fatalf("available+free = %d, want %d", got, slotCount-1)
		}
	}
	check()
	for i := 0; i < 5; i++ {
		if err := r.Send(SendParams{}, nil); err != nil {
			t.Fatal(err)
		}
		check()
	}
	for i := 0; i < 3; i++ {
		if _, ok := r.Fetch(); !ok {
			t.Fatal("expected message")
		}
		r.Ack()
		check()
	}
}

// Scenario 6: Wrap-around.
func TestWrapAround(t *testing.T) {
	r := newTestRing(t, 4, 512)

	for i := 0; i < 2; i++ {
		if err := r.Send(SendParams{}, nil); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, ok := r.Fetch(); !ok {
			t.Fatal("expected message")
		}
		r.Ack()
	}

	for i := 0; i < 3; i++ {
		if err := r.Send(SendParams{}, nil); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if !r.IsFull() {
		t.Fatal("expected full after filling to capacity")
	}
	for i := 0; i < 3; i++ {
		if _, ok := r.Fetch(); !ok {
			t.Fatal("expected message")
		}
		r.Ack()
	}

	if !r.IsEmpty() {
		t.Fatal("expected empty at end of wrap-around")
	}
}

func TestRoundTripManyTimes(t *testing.T) {
	const slotCount = 4
	r := newTestRing(t, slotCount, 512)
	for round := 0; round < slotCount*4; round++ {
		if err := r.Send(SendParams{Label: uint64(round)}, []byte("x")); err != nil {
			t.Fatalf("round %d send: %v", round, err)
		}
		msg, ok := r.Fetch()
		if !ok {
			t.Fatalf("round %d: expected message", round)
		}
		if msg.Header.Label != uint64(round) {
			t.Fatalf("round %d: label = %d", round, msg.Header.Label)
		}
		r.Ack()
		if !r.IsEmpty() {
			t.Fatalf("round %d: expected empty", round)
		}
	}
}

func TestFetchAckOnEmptyIsNoop(t *testing.T) {
	r := newTestRing(t, 4, 512)
	if _, ok := r.Fetch(); ok {
		t.Fatal("expected no message on empty ring")
	}
	r.Ack() // must not panic or corrupt state
	if !r.IsEmpty() {
		t.Fatal("expected still empty")
	}
}

func TestAttachToInitializedRing(t *testing.T) {
	region := make([]byte, TotalSize(4, 512))
	if _, err := Init(region, 4, 512); err != nil {
		t.Fatal(err)
	}
	r2, err := Attach(region)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if r2.SlotCount() != 4 || r2.SlotSize() != 512 {
		t.Fatalf("attached ring has wrong dims: %d/%d", r2.SlotCount(), r2.SlotSize())
	}
}

func TestAttachRejectsUninitializedRegion(t *testing.T) {
	region := make([]byte, CtrlSize)
	if _, err := Attach(region); err != api.ErrInvalidArgs {
		t.Fatalf("want ErrInvalidArgs, got %v", err)
	}
}
