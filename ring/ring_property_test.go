package ring

import (
	"math/rand"
	"testing"
)

// TestAvailableFreeInvariantRandomized drives random send/ack sequences
// and checks available+free = slot_count-1 after every step, the same
// invariant TestAvailablePlusFreeInvariant checks for a fixed schedule.
func TestAvailableFreeInvariantRandomized(t *testing.T) {
	const slotCount = 32
	r := newTestRing(t, slotCount, 64)
	rng := rand.New(rand.NewSource(1))
	queued := 0

	for step := 0; step < 5000; step++ {
		if queued > 0 && (rng.Intn(2) == 0 || queued == int(slotCount-1)) {
			if _, ok := r.Fetch(); !ok {
				t.Fatalf("step %d: expected message with queued=%d", step, queued)
			}
			r.Ack()
			queued--
		} else {
			err := r.Send(SendParams{}, nil)
			if queued == int(slotCount-1) {
				continue
			}
			if err != nil {
				t.Fatalf("step %d: unexpected send error %v (queued=%d)", step, err, queued)
			}
			queued++
		}
		if got := r.Available() + r.Free(); got != slotCount-1 {
			t.Fatalf("step %d: available+free = %d, want %d", step, got, slotCount-1)
		}
		if int(r.Available()) != queued {
			t.Fatalf("step %d: available = %d, want %d", step, r.Available(), queued)
		}
	}
}
