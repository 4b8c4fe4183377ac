// File: endpoint/memwindow.go
// License: Apache-2.0
//
// MemoryWindow enforces bounds and the perm field on inter-tile memory
// access, a contract spec.md §4.3 states but the original driver leaves
// stubbed.

package endpoint

import "github.com/momentics/vdtu/api"

// Permission bits for a Memory endpoint.
const (
	PermRead  uint8 = 1 << 0
	PermWrite uint8 = 1 << 1
)

// MemoryWindow is a bounds- and permission-checked view onto a memory
// channel's backing region.
type MemoryWindow struct {
	region []byte
	perm   uint8
}

// Size returns the window's byte size.
func (w *MemoryWindow) Size() int { return len(w.region) }

// ReadAt copies w.region[offset:offset+len(buf)] into buf. Requires
// PermRead and that the range fits within the window.
func (w *MemoryWindow) ReadAt(buf []byte, offset uint64) error {
	if w.perm&PermRead == 0 {
		return api.ErrNoPerm
	}
	if offset > uint64(len(w.region)) || offset+uint64(len(buf)) > uint64(len(w.region)) {
		return api.ErrInvalidArgs
	}
	copy(buf, w.region[offset:offset+uint64(len(buf))])
	return nil
}

// WriteAt copies buf into w.region[offset:offset+len(buf)]. Requires
// PermWrite and that the range fits within the window.
func (w *MemoryWindow) WriteAt(buf []byte, offset uint64) error {
	if w.perm&PermWrite == 0 {
		return api.ErrNoPerm
	}
	if offset > uint64(len(w.region)) || offset+uint64(len(buf)) > uint64(len(w.region)) {
		return api.ErrInvalidArgs
	}
	copy(w.region[offset:offset+uint64(len(buf))], buf)
	return nil
}
