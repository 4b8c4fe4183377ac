// File: kernel/dispatch.go
// License: Apache-2.0
//
// Kernel.Dispatch marshals the fixed-order-word syscall payloads
// (spec.md §6) into capability-subsystem calls and a u64 error_code
// reply, grounded on the teacher's protocol/frame_codec.go explicit-
// offset encode/decode style (here little-endian, matching wire.Header).

package kernel

import (
	"encoding/binary"

	"github.com/momentics/vdtu/api"
	"github.com/momentics/vdtu/capability"
)

// Opcode identifies one syscall this kernel's Dispatch accepts.
type Opcode uint16

// Fixed syscall opcodes (spec.md §6).
const (
	OpCreateGate Opcode = 4
	OpExchange   Opcode = 9
	OpRevoke     Opcode = 16
	OpNoop       Opcode = 18
)

// Tag bytes distinguishing the capability kinds this kernel creates via
// the syscall surface, packed into the type-tag byte of a capability.ID.
const (
	tagMessageGate uint8 = 1
	tagVPE         uint8 = 2
)

// wordSize is the width of one fixed-order payload word.
const wordSize = 8

// capRange is the wire form of (type, start, count): type and start
// are 32-bit fields, count is 64-bit, padded to exactly 16 bytes.
type capRange struct {
	Type  uint32
	Start uint32
	Count uint64
}

const capRangeSize = 16

func decodeRange(b []byte) capRange {
	return capRange{
		Type:  binary.LittleEndian.Uint32(b[0:4]),
		Start: binary.LittleEndian.Uint32(b[4:8]),
		Count: binary.LittleEndian.Uint64(b[8:16]),
	}
}

func decodeWord(b []byte) uint64 { return binary.LittleEndian.Uint64(b[0:8]) }

func encodeErrorCode(code api.ErrorCode) []byte {
	buf := make([]byte, wordSize)
	binary.LittleEndian.PutUint64(buf, uint64(code))
	return buf
}

// codeOf maps an error returned by the capability subsystem to the
// error_code word a syscall reply carries. dispatchRevoke turns a
// revocation root's error into NO_PERM before it reaches here.
func codeOf(err error) api.ErrorCode {
	if err == nil {
		return api.ErrCodeOK
	}
	if e, ok := err.(*api.Error); ok {
		return e.Code
	}
	return api.ErrCodeInternal
}

// gatePayload is the Payload a CREATEGATE-created capability carries:
// enough to invalidate the bound endpoint on revoke.
type gatePayload struct {
	DestCap uint64
	Label   uint64
	EPID    uint8
	Credits uint16
}

// Dispatch marshals and executes one syscall against tileID's VPE vpeID,
// returning the (error_code: u64) reply payload. A non-nil error return
// indicates tileID is unknown, the payload itself was malformed, or op
// is unrecognized — never a capability-subsystem failure, which is
// folded into the reply.
func (k *Kernel) Dispatch(tileID, vpeID uint16, op Opcode, payload []byte) ([]byte, error) {
	t, err := k.Tile(tileID)
	if err != nil {
		return nil, err
	}
	return t.Dispatch(vpeID, op, payload)
}

// Dispatch is the per-tile entry point Kernel.Dispatch forwards to.
func (t *Tile) Dispatch(vpeID uint16, op Opcode, payload []byte) ([]byte, error) {
	switch op {
	case OpNoop:
		return encodeErrorCode(api.ErrCodeOK), nil
	case OpCreateGate:
		return t.dispatchCreateGate(vpeID, payload)
	case OpExchange:
		return t.dispatchExchange(vpeID, payload)
	case OpRevoke:
		return t.dispatchRevoke(vpeID, payload)
	default:
		return nil, api.ErrInvalidArgs
	}
}

// dispatchCreateGate implements CREATEGATE: payload is
// (tcap, dstcap, label, epid, credits), five u64 words.
func (t *Tile) dispatchCreateGate(vpeID uint16, payload []byte) ([]byte, error) {
	if len(payload) < wordSize*5 {
		return nil, api.ErrInvalidArgs
	}
	tcap := decodeWord(payload[0:8])
	dstcap := decodeWord(payload[8:16])
	label := decodeWord(payload[16:24])
	epid := decodeWord(payload[24:32])
	credits := decodeWord(payload[32:40])

	table := t.vpeTable(vpeID)
	id := capability.MakeID(t.KernelID, vpeID, capability.SpaceObject, tagMessageGate, uint32(tcap))
	gp := gatePayload{DestCap: dstcap, Label: label, EPID: uint8(epid), Credits: uint16(credits)}
	epIDCopy := int(epid)
	hook := func() error {
		t.Endpoints.InvalidateEP(epIDCopy)
		return nil
	}
	_, err := t.CapNode.Create(table, uint32(tcap), id, capability.KindMessageGate, gp, hook)
	return encodeErrorCode(codeOf(err)), nil
}

// dispatchExchange implements EXCHANGE: payload is
// (tcap, own_range, other_range, obtain), tcap/obtain as u64 words and
// each range as a capRange. tcap selects a VPE capability already
// installed in the caller's own table; that capability's Payload names
// the target VPE whose table own_range/other_range address. obtain
// chooses direction: 0 delegates from own to other, non-zero pulls from
// other to own.
func (t *Tile) dispatchExchange(vpeID uint16, payload []byte) ([]byte, error) {
	const size = wordSize + capRangeSize + capRangeSize + wordSize
	if len(payload) < size {
		return nil, api.ErrInvalidArgs
	}
	tcap := decodeWord(payload[0:8])
	ownRange := decodeRange(payload[8:24])
	otherRange := decodeRange(payload[24:40])
	obtain := decodeWord(payload[40:48])

	ownTable := t.vpeTable(vpeID)
	vpeCap := ownTable.Get(uint32(tcap))
	if vpeCap == nil || vpeCap.Kind != capability.KindVPE {
		return encodeErrorCode(api.ErrCodeNotFound), nil
	}
	targetVPEID, ok := vpeCap.Payload.(uint16)
	if !ok {
		return encodeErrorCode(api.ErrCodeInvalidArgs), nil
	}
	targetTable := t.vpeTable(targetVPEID)

	count := ownRange.Count
	if otherRange.Count < count {
		count = otherRange.Count
	}
	if count == 0 {
		count = 1
	}

	var lastErr error
	for i := uint64(0); i < count; i++ {
		srcTable, srcSel := ownTable, ownRange.Start+uint32(i)
		dstTable, dstSel := targetTable, otherRange.Start+uint32(i)
		if obtain != 0 {
			srcTable, dstTable = targetTable, ownTable
			srcSel, dstSel = otherRange.Start+uint32(i), ownRange.Start+uint32(i)
		}
		parent := srcTable.Get(srcSel)
		if parent == nil {
			lastErr = api.ErrNotFound
			continue
		}
		childID := capability.MakeID(t.KernelID, 0, capability.SpaceObject, 0, dstSel)
		if _, err := t.CapNode.Exchange(dstTable, dstSel, parent, childID); err != nil {
			lastErr = err
		}
	}
	return encodeErrorCode(codeOf(lastErr)), nil
}

// dispatchRevoke implements REVOKE: payload is (range, own), a capRange
// followed by a u64 word. Every selector in range is revoked from the
// caller's own VPE table.
func (t *Tile) dispatchRevoke(vpeID uint16, payload []byte) ([]byte, error) {
	const size = capRangeSize + wordSize
	if len(payload) < size {
		return nil, api.ErrInvalidArgs
	}
	r := decodeRange(payload[0:16])
	own := decodeWord(payload[16:24]) != 0

	table := t.vpeTable(vpeID)
	count := r.Count
	if count == 0 {
		count = 1
	}
	var lastErr error
	for i := uint64(0); i < count; i++ {
		sel := r.Start + uint32(i)
		if err := t.CapNode.Revoke(table, sel, own); err != nil {
			lastErr = api.ErrNoPerm
		}
	}
	return encodeErrorCode(codeOf(lastErr)), nil
}
