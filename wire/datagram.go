// File: wire/datagram.go
// License: Apache-2.0
//
// Framing for the inter-node datagram: a Header immediately followed by
// its payload bytes, with no other envelope.

package wire

// EncodeDatagram renders h and payload into one contiguous buffer.
func EncodeDatagram(h Header, payload []byte) ([]byte, error) {
	h.Length = uint16(len(payload))
	buf := make([]byte, HeaderSize+len(payload))
	if err := Encode(buf, h); err != nil {
		return nil, err
	}
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// DecodeDatagram splits a received datagram into its header and payload,
// validating that the declared Length fits within the received bytes.
func DecodeDatagram(raw []byte) (Header, []byte, error) {
	h, err := Decode(raw)
	if err != nil {
		return Header{}, nil, err
	}
	end := HeaderSize + int(h.Length)
	if end > len(raw) {
		return Header{}, nil, ErrShortBuffer
	}
	return h, raw[HeaderSize:end], nil
}
