// File: adapters/frame_driver.go
// Package adapters
// License: Apache-2.0
//
// FrameDriver pins the out-of-scope NIC collaborator one layer below
// DatagramTransport — spec.md §1 keeps it, like the UDP/IP stack, as an
// external component with a pinned interface rather than something this
// module implements. UDPDatagramTransport talks to the kernel's own UDP
// stack directly and never calls through a FrameDriver; the interface
// and its loopback double exist so a future transport built directly on
// raw frames (bypassing the OS UDP stack) has a seam to implement.

package adapters

import "sync"

// FrameDriver is the out-of-scope NIC driver seam: transmit one frame,
// poll a receive queue for frames already delivered by the hardware.
type FrameDriver interface {
	TXFrame(frame []byte) error
	RXFrame() ([]byte, bool)
}

// LoopbackFrameDriver is a FrameDriver test double that hands every
// transmitted frame straight back out its own receive queue, standing in
// for a NIC wired to itself.
type LoopbackFrameDriver struct {
	mu     sync.Mutex
	frames [][]byte
}

// NewLoopbackFrameDriver returns an empty loopback driver.
func NewLoopbackFrameDriver() *LoopbackFrameDriver {
	return &LoopbackFrameDriver{}
}

// TXFrame implements FrameDriver by enqueueing frame for RXFrame to
// return later.
func (d *LoopbackFrameDriver) TXFrame(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.mu.Lock()
	d.frames = append(d.frames, cp)
	d.mu.Unlock()
	return nil
}

// RXFrame implements FrameDriver, returning the oldest transmitted frame
// not yet received, if any.
func (d *LoopbackFrameDriver) RXFrame() ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return nil, false
	}
	f := d.frames[0]
	d.frames = d.frames[1:]
	return f, true
}
