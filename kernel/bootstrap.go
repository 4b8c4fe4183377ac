// File: kernel/bootstrap.go
// License: Apache-2.0
//
// Bootstrap resolves SPEC_FULL.md §4.4's VPE bring-up Open Question: a
// tile starts with VPE0 active and VPE1 passive, and VPE0 holds a
// capability referencing VPE1 at a fixed selector so a cross-VPE
// EXCHANGE (spec.md §8 scenario 4) has something to address from cold
// start.

package kernel

import "github.com/momentics/vdtu/capability"

// VPE0 and VPE1 are the two virtual processing elements Bootstrap wires
// up on a freshly created tile.
const (
	VPE0 uint16 = 0
	VPE1 uint16 = 1
)

// VPE1Selector is the selector VPE0's own table holds VPE1's capability
// at, per SPEC_FULL.md §4.4.
const VPE1Selector = 2

// Bootstrap installs VPE0 as active and VPE1 as passive on tileID,
// recording a KindVPE capability addressing VPE1 at VPE0.sel[2].
func Bootstrap(k *Kernel, tileID uint16) error {
	t, err := k.Tile(tileID)
	if err != nil {
		return err
	}

	vpe0 := t.vpeTable(VPE0)
	t.vpeTable(VPE1) // passive: brought into existence, not otherwise touched

	vpe1ID := capability.MakeID(k.ID, VPE1, capability.SpaceObject, tagVPE, VPE1Selector)
	_, err = t.CapNode.Create(vpe0, VPE1Selector, vpe1ID, capability.KindVPE, VPE1, nil)
	return err
}
