// Package wireproto defines the opcode table and payload encoders/decoders
// for the /io WebSocket wire protocol (spec §6).
package wireproto

// Opcode identifies the kind of message carried after the envelope header.
type Opcode = uint8

const (
	OpClientHello Opcode = 0x01
	OpServerHello Opcode = 0x02
	OpAuth        Opcode = 0x03
	OpAuthResult  Opcode = 0x04

	OpTCPConnect      Opcode = 0x10
	OpTCPConnected    Opcode = 0x11
	OpTCPSend         Opcode = 0x12
	OpTCPRecv         Opcode = 0x13
	OpTCPClose        Opcode = 0x14
	OpTCPListen       Opcode = 0x15
	OpTCPListenResult Opcode = 0x16
	OpTCPAccept       Opcode = 0x17
	OpTCPStopListen   Opcode = 0x18

	OpUDPBind           Opcode = 0x20
	OpUDPBound          Opcode = 0x21
	OpUDPSend           Opcode = 0x22
	OpUDPRecv           Opcode = 0x23
	OpUDPClose          Opcode = 0x24
	OpUDPJoinMulticast  Opcode = 0x25
	OpUDPLeaveMulticast Opcode = 0x26

	OpError Opcode = 0x7F
)

// RequestIDAsync is used for asynchronous events that do not correlate to
// a client request: TCP_RECV, TCP_CLOSE, TCP_ACCEPT, UDP_RECV, UDP_CLOSE.
const RequestIDAsync uint32 = 0
