package wireproto

import (
	"encoding/binary"
	"fmt"
)

// AuthPayload is the decoded AUTH (0x03) request body.
type AuthPayload struct {
	AuthType byte
	Token    string
}

// DecodeAuth parses authType(1) + data per spec §4.2. authType 0 carries
// null-separated token\0extensionId\0installId (only token is extracted);
// authType 1 carries the token verbatim.
func DecodeAuth(payload []byte) (AuthPayload, error) {
	if len(payload) == 0 {
		return AuthPayload{}, fmt.Errorf("wireproto: empty auth payload")
	}
	authType := payload[0]
	data := payload[1:]
	switch authType {
	case 0:
		token := data
		for i, b := range data {
			if b == 0 {
				token = data[:i]
				break
			}
		}
		return AuthPayload{AuthType: authType, Token: string(token)}, nil
	case 1:
		return AuthPayload{AuthType: authType, Token: string(data)}, nil
	default:
		return AuthPayload{}, fmt.Errorf("wireproto: unknown auth type %d", authType)
	}
}

// EncodeAuthResult builds the AUTH_RESULT (0x04) payload: [0] on success,
// [1, message...] on failure.
func EncodeAuthResult(ok bool, message string) []byte {
	if ok {
		return []byte{0}
	}
	out := make([]byte, 0, 1+len(message))
	out = append(out, 1)
	out = append(out, message...)
	return out
}

// TCPConnectRequest is the decoded TCP_CONNECT (0x10) payload.
type TCPConnectRequest struct {
	SocketID uint32
	Port     uint16
	Hostname string
}

// DecodeTCPConnect parses socketId(4,LE) port(2,LE) hostname(utf8,rest).
func DecodeTCPConnect(payload []byte) (TCPConnectRequest, error) {
	if len(payload) < 6 {
		return TCPConnectRequest{}, fmt.Errorf("wireproto: short TCP_CONNECT payload")
	}
	return TCPConnectRequest{
		SocketID: binary.LittleEndian.Uint32(payload[0:4]),
		Port:     binary.LittleEndian.Uint16(payload[4:6]),
		Hostname: string(payload[6:]),
	}, nil
}

// EncodeTCPConnected builds the TCP_CONNECTED (0x11) payload:
// socketId(4) status(1) errno(4).
func EncodeTCPConnected(socketID uint32, status uint8, errno uint32) []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint32(buf[0:4], socketID)
	buf[4] = status
	binary.LittleEndian.PutUint32(buf[5:9], errno)
	return buf
}

// DecodeSocketIDAndData parses socketId(4) + data(rest), used by TCP_SEND.
func DecodeSocketIDAndData(payload []byte) (uint32, []byte, error) {
	if len(payload) < 4 {
		return 0, nil, fmt.Errorf("wireproto: short payload")
	}
	return binary.LittleEndian.Uint32(payload[0:4]), payload[4:], nil
}

// EncodeTCPRecv builds the TCP_RECV (0x13) payload: socketId(4) + data.
func EncodeTCPRecv(socketID uint32, data []byte) []byte {
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], socketID)
	copy(buf[4:], data)
	return buf
}

// CloseReason values for TCP_CLOSE / UDP_CLOSE.
const (
	CloseReasonNormal = 0
	CloseReasonError  = 1
)

// EncodeClose builds the TCP_CLOSE/UDP_CLOSE payload: socketId(4) reason(1) errno(4).
func EncodeClose(socketID uint32, reason uint8, errno uint32) []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint32(buf[0:4], socketID)
	buf[4] = reason
	binary.LittleEndian.PutUint32(buf[5:9], errno)
	return buf
}

// DecodeSocketID parses a bare socketId(4) payload, used by TCP_CLOSE,
// TCP_STOP_LISTEN (serverId), UDP_CLOSE.
func DecodeSocketID(payload []byte) (uint32, error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("wireproto: short payload")
	}
	return binary.LittleEndian.Uint32(payload[0:4]), nil
}

// TCPListenRequest is the decoded TCP_LISTEN (0x15) payload.
type TCPListenRequest struct {
	ServerID  uint32
	Port      uint16
	BindAddr  string
}

// DecodeTCPListen parses serverId(4) port(2) bindAddr(utf8,rest). An empty
// bindAddr means 0.0.0.0 per spec §4.5.
func DecodeTCPListen(payload []byte) (TCPListenRequest, error) {
	if len(payload) < 6 {
		return TCPListenRequest{}, fmt.Errorf("wireproto: short TCP_LISTEN payload")
	}
	return TCPListenRequest{
		ServerID: binary.LittleEndian.Uint32(payload[0:4]),
		Port:     binary.LittleEndian.Uint16(payload[4:6]),
		BindAddr: string(payload[6:]),
	}, nil
}

// EncodeTCPListenResult builds the TCP_LISTEN_RESULT (0x16) payload:
// serverId(4) status(1) boundPort(2) errno(4).
func EncodeTCPListenResult(serverID uint32, status uint8, boundPort uint16, errno uint32) []byte {
	buf := make([]byte, 11)
	binary.LittleEndian.PutUint32(buf[0:4], serverID)
	buf[4] = status
	binary.LittleEndian.PutUint16(buf[5:7], boundPort)
	binary.LittleEndian.PutUint32(buf[7:11], errno)
	return buf
}

// EncodeTCPAccept builds the TCP_ACCEPT (0x17) payload:
// serverId(4) socketId(4) remotePort(2) remoteAddr(utf8).
func EncodeTCPAccept(serverID, socketID uint32, remotePort uint16, remoteAddr string) []byte {
	buf := make([]byte, 10+len(remoteAddr))
	binary.LittleEndian.PutUint32(buf[0:4], serverID)
	binary.LittleEndian.PutUint32(buf[4:8], socketID)
	binary.LittleEndian.PutUint16(buf[8:10], remotePort)
	copy(buf[10:], remoteAddr)
	return buf
}

// UDPBindRequest is the decoded UDP_BIND (0x20) payload.
type UDPBindRequest struct {
	SocketID uint32
	Port     uint16
	BindAddr string
}

// DecodeUDPBind parses socketId(4) port(2) bindAddr(utf8,rest).
func DecodeUDPBind(payload []byte) (UDPBindRequest, error) {
	if len(payload) < 6 {
		return UDPBindRequest{}, fmt.Errorf("wireproto: short UDP_BIND payload")
	}
	return UDPBindRequest{
		SocketID: binary.LittleEndian.Uint32(payload[0:4]),
		Port:     binary.LittleEndian.Uint16(payload[4:6]),
		BindAddr: string(payload[6:]),
	}, nil
}

// EncodeUDPBound builds the UDP_BOUND (0x21) payload:
// socketId(4) status(1) boundPort(2) errno(4).
func EncodeUDPBound(socketID uint32, status uint8, boundPort uint16, errno uint32) []byte {
	buf := make([]byte, 11)
	binary.LittleEndian.PutUint32(buf[0:4], socketID)
	buf[4] = status
	binary.LittleEndian.PutUint16(buf[5:7], boundPort)
	binary.LittleEndian.PutUint32(buf[7:11], errno)
	return buf
}

// UDPSendRequest is the decoded UDP_SEND (0x22) payload.
type UDPSendRequest struct {
	SocketID   uint32
	DestPort   uint16
	DestAddr   string
	Data       []byte
}

// DecodeUDPSend parses socketId(4) destPort(2) destAddrLen(2) destAddr data.
func DecodeUDPSend(payload []byte) (UDPSendRequest, error) {
	if len(payload) < 8 {
		return UDPSendRequest{}, fmt.Errorf("wireproto: short UDP_SEND payload")
	}
	socketID := binary.LittleEndian.Uint32(payload[0:4])
	destPort := binary.LittleEndian.Uint16(payload[4:6])
	addrLen := int(binary.LittleEndian.Uint16(payload[6:8]))
	if len(payload) < 8+addrLen {
		return UDPSendRequest{}, fmt.Errorf("wireproto: UDP_SEND addr truncated")
	}
	destAddr := string(payload[8 : 8+addrLen])
	data := payload[8+addrLen:]
	return UDPSendRequest{SocketID: socketID, DestPort: destPort, DestAddr: destAddr, Data: data}, nil
}

// EncodeUDPRecv builds the UDP_RECV (0x23) payload:
// socketId(4) peerPort(2) peerAddrLen(2) peerAddr(utf8) data(rest).
func EncodeUDPRecv(socketID uint32, peerPort uint16, peerAddr string, data []byte) []byte {
	buf := make([]byte, 8+len(peerAddr)+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], socketID)
	binary.LittleEndian.PutUint16(buf[4:6], peerPort)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(peerAddr)))
	n := copy(buf[8:], peerAddr)
	copy(buf[8+n:], data)
	return buf
}

// DecodeMulticastGroup parses socketId(4) groupAddr(utf8, rest) used by
// UDP_JOIN_MULTICAST / UDP_LEAVE_MULTICAST.
func DecodeMulticastGroup(payload []byte) (uint32, string, error) {
	if len(payload) < 4 {
		return 0, "", fmt.Errorf("wireproto: short multicast payload")
	}
	return binary.LittleEndian.Uint32(payload[0:4]), string(payload[4:]), nil
}
