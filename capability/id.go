// File: capability/id.go
// License: Apache-2.0
//
// Cap id packing: responsible_kernel | owning_vpe | type_tag | selector,
// in one 64-bit key. Object and mapping cap id spaces are kept disjoint
// by a sentinel bit in the type_tag byte, which RevocationList keys
// normalize away.

package capability

// ID is a globally unique 64-bit capability identifier.
type ID uint64

const (
	kernelBits   = 16
	vpeBits      = 16
	typeBits     = 8
	selectorBits = 24

	selectorMask = uint64(1)<<selectorBits - 1
	typeMask     = uint64(1)<<typeBits - 1
	vpeMask      = uint64(1)<<vpeBits - 1
	kernelMask   = uint64(1)<<kernelBits - 1

	selectorShift = 0
	typeShift     = selectorBits
	vpeShift      = selectorBits + typeBits
	kernelShift   = selectorBits + typeBits + vpeBits
)

// Space distinguishes the object and mapping cap id namespaces via a
// sentinel bit in the type tag.
type Space uint8

const (
	SpaceObject  Space = 0
	SpaceMapping Space = 1
	spaceMask    uint8 = 1 << 7
)

// MakeID packs the given fields into an ID. sel is masked to 24 bits.
func MakeID(kernel uint16, vpe uint16, space Space, tag uint8, sel uint32) ID {
	t := tag &^ spaceMask
	if space == SpaceMapping {
		t |= spaceMask
	}
	return ID(uint64(kernel&uint16(kernelMask))<<kernelShift |
		uint64(vpe&uint16(vpeMask))<<vpeShift |
		uint64(t)<<typeShift |
		(uint64(sel) & selectorMask))
}

// Kernel returns the responsible-kernel field.
func (id ID) Kernel() uint16 { return uint16((uint64(id) >> kernelShift) & kernelMask) }

// VPE returns the owning-VPE field.
func (id ID) VPE() uint16 { return uint16((uint64(id) >> vpeShift) & vpeMask) }

// TypeTag returns the raw type tag byte, including the space sentinel bit.
func (id ID) TypeTag() uint8 { return uint8((uint64(id) >> typeShift) & typeMask) }

// Space reports which disjoint id space id belongs to.
func (id ID) Space() Space {
	if id.TypeTag()&spaceMask != 0 {
		return SpaceMapping
	}
	return SpaceObject
}

// Selector returns the 24-bit selector field.
func (id ID) Selector() uint32 { return uint32(uint64(id) & selectorMask) }

// normalize strips the space sentinel bit, matching the source's
// "find() normalises the type tag first" requirement so RevocationList
// lookups are insensitive to which space a revoked id came from.
func normalize(id ID) uint64 {
	return uint64(id) &^ (uint64(spaceMask) << typeShift)
}
