// Package envelope implements the 8-byte header prepended to every binary
// WebSocket frame on the /io socket multiplexer: version(1) opcode(1)
// flags(2) requestID(4), all little-endian except the single-byte fields.
package envelope

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed length of the envelope header in bytes.
const Size = 8

// ProtocolVersion is the only version this daemon understands.
const ProtocolVersion = 1

// Envelope is the decoded form of the 8-byte frame header.
type Envelope struct {
	Version   uint8
	Opcode    uint8
	Flags     uint16
	RequestID uint32
}

// New builds an envelope at the current protocol version.
func New(opcode uint8, requestID uint32) Envelope {
	return Envelope{Version: ProtocolVersion, Opcode: opcode, RequestID: requestID}
}

// Encode writes the envelope into a fresh 8-byte slice.
func (e Envelope) Encode() []byte {
	buf := make([]byte, Size)
	buf[0] = e.Version
	buf[1] = e.Opcode
	binary.LittleEndian.PutUint16(buf[2:4], e.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], e.RequestID)
	return buf
}

// Frame encodes the envelope followed by payload into a single buffer
// suitable for a single WebSocket binary write.
func Frame(opcode uint8, requestID uint32, payload []byte) []byte {
	buf := make([]byte, Size+len(payload))
	copy(buf, New(opcode, requestID).Encode())
	copy(buf[Size:], payload)
	return buf
}

// Decode parses the envelope from the front of data and returns the
// remaining payload. Frames shorter than Size are caller-filtered noise
// (spec: "Frames < 8 bytes are silently dropped") and are rejected here
// with an error so the caller can apply that policy.
func Decode(data []byte) (Envelope, []byte, error) {
	if len(data) < Size {
		return Envelope{}, nil, fmt.Errorf("envelope: frame too short (%d bytes)", len(data))
	}
	e := Envelope{
		Version:   data[0],
		Opcode:    data[1],
		Flags:     binary.LittleEndian.Uint16(data[2:4]),
		RequestID: binary.LittleEndian.Uint32(data[4:8]),
	}
	return e, data[Size:], nil
}
