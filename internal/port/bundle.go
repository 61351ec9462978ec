package port

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed {length, target_handler, code} prefix of every
// framed record inside a MESSAGE_BUNDLE payload (spec §4.4).
const HeaderSize = 12

// EncodeBundle concatenates msgs into a single MESSAGE_BUNDLE payload.
func EncodeBundle(msgs []Message) []byte {
	buf := make([]byte, 0, 64*len(msgs))
	for _, m := range msgs {
		length := uint32(HeaderSize + len(m.Payload))
		var hdr [HeaderSize]byte
		binary.LittleEndian.PutUint32(hdr[0:4], length)
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(m.TargetHandler))
		binary.LittleEndian.PutUint32(hdr[8:12], uint32(m.Code))
		buf = append(buf, hdr[:]...)
		buf = append(buf, m.Payload...)
	}
	return buf
}

// DecodeBundle parses as many complete, well-formed frames as possible
// out of payload. A malformed frame (length < HeaderSize, or a frame that
// would run past the remaining payload) aborts only the current bundle:
// DecodeBundle returns the frames successfully decoded so far along with
// an error describing why decoding stopped (spec §4.4).
func DecodeBundle(payload []byte) ([]Message, error) {
	var out []Message
	off := 0
	for off < len(payload) {
		remaining := len(payload) - off
		if remaining < HeaderSize {
			return out, fmt.Errorf("port: truncated frame header at offset %d", off)
		}
		length := binary.LittleEndian.Uint32(payload[off : off+4])
		target := int32(binary.LittleEndian.Uint32(payload[off+4 : off+8]))
		code := int32(binary.LittleEndian.Uint32(payload[off+8 : off+12]))
		if length < HeaderSize {
			return out, fmt.Errorf("port: frame length %d below header size at offset %d", length, off)
		}
		if int(length) > remaining {
			return out, fmt.Errorf("port: frame length %d exceeds remaining bundle payload %d", length, remaining)
		}
		body := payload[off+HeaderSize : off+int(length)]
		pl := make([]byte, len(body))
		copy(pl, body)
		out = append(out, Message{Code: code, TargetHandler: target, Payload: pl})
		off += int(length)
	}
	return out, nil
}
