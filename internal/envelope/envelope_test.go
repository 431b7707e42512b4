package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Envelope{
		{Version: ProtocolVersion, Opcode: 0x01, Flags: 0, RequestID: 0},
		{Version: ProtocolVersion, Opcode: 0x10, Flags: 0xBEEF, RequestID: 0xDEADBEEF},
		{Version: ProtocolVersion, Opcode: 0x7F, Flags: 1, RequestID: 1},
	}
	for _, want := range cases {
		buf := want.Encode()
		require.Len(t, buf, Size)

		got, rest, err := Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Empty(t, rest)
	}
}

func TestFrameAppendsPayload(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	frame := Frame(0x12, 7, payload)
	require.Len(t, frame, Size+len(payload))

	env, rest, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x12), env.Opcode)
	assert.Equal(t, uint32(7), env.RequestID)
	assert.Equal(t, payload, rest)
}

func TestDecodeRejectsShortFrames(t *testing.T) {
	for n := 0; n < Size; n++ {
		_, _, err := Decode(make([]byte, n))
		assert.Error(t, err, "expected error for %d-byte frame", n)
	}
}

func TestNewSetsProtocolVersion(t *testing.T) {
	e := New(0x10, 42)
	assert.Equal(t, uint8(ProtocolVersion), e.Version)
	assert.Equal(t, uint8(0x10), e.Opcode)
	assert.Equal(t, uint32(42), e.RequestID)
}
