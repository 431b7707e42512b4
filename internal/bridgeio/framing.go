// Package bridgeio implements the Bridge-side boundary of spec §4.14: the
// native-messaging stdio framing to the browser, the rpc-info.json
// discovery file, and spawning/watching the I/O Daemon process. Framing
// is grounded on common/ipc/framing.go's WriteFrame/ReadFrame, adapted
// from a Unix-socket byte stream to the Bridge's stdio channel (native
// messaging uses a 4-byte length prefix with no type byte, since every
// message on that channel is JSON).
package bridgeio

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxMessageSize guards against a runaway length prefix, mirroring
// framing.go's "prevent huge allocations" sanity check.
const maxMessageSize = 64 * 1024 * 1024

// WriteMessage writes v as a length-prefixed JSON frame: length(4,
// little-endian) followed by the JSON payload.
func WriteMessage(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("bridgeio: marshal message: %w", err)
	}
	length := uint32(len(payload))
	if err := binary.Write(w, binary.LittleEndian, length); err != nil {
		return fmt.Errorf("bridgeio: write length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("bridgeio: write payload: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed JSON frame from r and unmarshals
// it into v.
func ReadMessage(r io.Reader, v any) error {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return fmt.Errorf("bridgeio: read length: %w", err)
	}
	if length > maxMessageSize {
		return fmt.Errorf("bridgeio: message too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("bridgeio: read payload: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("bridgeio: unmarshal payload: %w", err)
	}
	return nil
}
