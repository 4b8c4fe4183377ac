// File: wire/header.go
// Package wire implements the packed, little-endian DTU message header
// codec: explicit byte-offset encode/decode, pinned by tests so the wire
// format stays stable across reimplementations.
// License: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed, packed size of a DTU message header in bytes.
const HeaderSize = 25

// Flag bits carried in Header.Flags.
const (
	FlagReply        uint8 = 1 << 0
	FlagGrantCredits uint8 = 1 << 1
)

// ErrShortBuffer is returned when a buffer is too small to hold a header
// or the payload it claims to carry.
var ErrShortBuffer = errors.New("wire: buffer too short")

// Header is the in-memory form of the 25-byte packed wire header.
// Field order and sizes mirror the byte layout exactly:
//
//	offset  size  field
//	0       1     Flags
//	1       2     SenderTile
//	3       1     SenderEP
//	4       1     ReplyEP
//	5       2     Length
//	7       2     SenderVPE
//	9       8     Label
//	17      8     ReplyLabel
type Header struct {
	Flags      uint8
	SenderTile uint16
	SenderEP   uint8
	ReplyEP    uint8
	Length     uint16
	SenderVPE  uint16
	Label      uint64
	ReplyLabel uint64
}

// IsReply reports whether the reply flag bit is set.
func (h Header) IsReply() bool { return h.Flags&FlagReply != 0 }

// GrantsCredits reports whether the grant-credits flag bit is set.
func (h Header) GrantsCredits() bool { return h.Flags&FlagGrantCredits != 0 }

// Encode writes h into dst[0:HeaderSize]. dst must be at least HeaderSize
// bytes; Encode never allocates.
func Encode(dst []byte, h Header) error {
	if len(dst) < HeaderSize {
		return ErrShortBuffer
	}
	dst[0] = h.Flags
	binary.LittleEndian.PutUint16(dst[1:3], h.SenderTile)
	dst[3] = h.SenderEP
	dst[4] = h.ReplyEP
	binary.LittleEndian.PutUint16(dst[5:7], h.Length)
	binary.LittleEndian.PutUint16(dst[7:9], h.SenderVPE)
	binary.LittleEndian.PutUint64(dst[9:17], h.Label)
	binary.LittleEndian.PutUint64(dst[17:25], h.ReplyLabel)
	return nil
}

// Decode reads a Header from src[0:HeaderSize].
func Decode(src []byte) (Header, error) {
	var h Header
	if len(src) < HeaderSize {
		return h, ErrShortBuffer
	}
	h.Flags = src[0]
	h.SenderTile = binary.LittleEndian.Uint16(src[1:3])
	h.SenderEP = src[3]
	h.ReplyEP = src[4]
	h.Length = binary.LittleEndian.Uint16(src[5:7])
	h.SenderVPE = binary.LittleEndian.Uint16(src[7:9])
	h.Label = binary.LittleEndian.Uint64(src[9:17])
	h.ReplyLabel = binary.LittleEndian.Uint64(src[17:25])
	return h, nil
}
