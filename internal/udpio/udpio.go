// Package udpio implements the UDP half of the socket multiplexer: bind,
// send, multicast join/leave, and close, per spec §4.6. Multicast group
// membership uses golang.org/x/net/ipv4 rather than raw syscalls.
package udpio

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/mordilloSan/go-logger/logger"
	"golang.org/x/net/ipv4"

	"github.com/jstorrent/iobridge/internal/registry"
	"github.com/jstorrent/iobridge/internal/wireproto"
)

// recvBufSize matches the 65535-byte UDP datagram buffer of the original
// daemon (maximum possible UDP payload).
const recvBufSize = 65535

// Emitter sends an encoded frame to the session's single writer goroutine.
type Emitter interface {
	Emit(frame []byte)
}

// Bind opens a UDP socket with SO_REUSEADDR on bindAddr:port (empty bindAddr
// means all interfaces, port 0 means an ephemeral port) and starts a receive loop
// that emits UDP_RECV frames for each inbound datagram.
func Bind(ctx context.Context, reg *registry.Registry, emit Emitter, socketID uint32, bindAddr string, port uint16) (ok bool, boundPort uint16, errno uint32) {
	addr := net.JoinHostPort(bindAddr, fmt.Sprintf("%d", port))
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		logger.Warnf("udpio: resolve socket=%d addr=%s failed: %v", socketID, addr, err)
		return false, 0, 1
	}
	lc := net.ListenConfig{Control: func(_, _ string, rc syscall.RawConn) error {
		var serr error
		if err := rc.Control(func(fd uintptr) {
			serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
		}); err != nil {
			return err
		}
		return serr
	}}
	pc, err := lc.ListenPacket(ctx, "udp", udpAddr.String())
	if err != nil {
		logger.Warnf("udpio: bind socket=%d addr=%s failed: %v", socketID, addr, err)
		return false, 0, 1
	}
	conn := pc.(*net.UDPConn)

	actualPort := uint16(0)
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		actualPort = uint16(la.Port)
	}

	sockCtx, cancel := context.WithCancel(ctx)
	reg.PutUDP(socketID, &registry.UDPSocket{Conn: conn, Cancel: cancel})
	go recvLoop(sockCtx, reg, conn, emit, socketID)
	return true, actualPort, 0
}

func recvLoop(ctx context.Context, reg *registry.Registry, conn *net.UDPConn, emit Emitter, socketID uint32) {
	buf := make([]byte, recvBufSize)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if n > 0 {
			reg.AddBytesReceived(n)
			data := make([]byte, n)
			copy(data, buf[:n])
			emit.Emit(wireproto.EncodeUDPRecv(socketID, uint16(peer.Port), peer.IP.String(), data))
		}
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				emit.Emit(wireproto.EncodeClose(socketID, wireproto.CloseReasonNormal, 0))
				return
			}
		}
	}
}

// Send writes a datagram to destAddr:destPort on the socket identified by
// socketID.
func Send(reg *registry.Registry, socketID uint32, destAddr string, destPort uint16, data []byte) error {
	u, ok := reg.GetUDP(socketID)
	if !ok {
		return fmt.Errorf("udpio: unknown socket %d", socketID)
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(destAddr, fmt.Sprintf("%d", destPort)))
	if err != nil {
		return err
	}
	n, err := u.Conn.WriteToUDP(data, addr)
	reg.AddBytesSent(n)
	return err
}

// Close closes the socket identified by socketID and drops it from reg.
func Close(reg *registry.Registry, socketID uint32) {
	u, ok := reg.DeleteUDP(socketID)
	if !ok {
		return
	}
	if u.Cancel != nil {
		u.Cancel()
	}
	_ = u.Conn.Close()
}

// JoinMulticast joins the socket identified by socketID to groupAddr.
func JoinMulticast(reg *registry.Registry, socketID uint32, groupAddr string) error {
	u, ok := reg.GetUDP(socketID)
	if !ok {
		return fmt.Errorf("udpio: unknown socket %d", socketID)
	}
	group := net.ParseIP(groupAddr)
	if group == nil {
		return fmt.Errorf("udpio: invalid multicast address %q", groupAddr)
	}
	pc := ipv4.NewPacketConn(u.Conn)
	iface, err := defaultMulticastInterface()
	if err != nil {
		return err
	}
	return pc.JoinGroup(iface, &net.UDPAddr{IP: group})
}

// LeaveMulticast removes the socket identified by socketID from groupAddr.
func LeaveMulticast(reg *registry.Registry, socketID uint32, groupAddr string) error {
	u, ok := reg.GetUDP(socketID)
	if !ok {
		return fmt.Errorf("udpio: unknown socket %d", socketID)
	}
	group := net.ParseIP(groupAddr)
	if group == nil {
		return fmt.Errorf("udpio: invalid multicast address %q", groupAddr)
	}
	pc := ipv4.NewPacketConn(u.Conn)
	iface, err := defaultMulticastInterface()
	if err != nil {
		return err
	}
	return pc.LeaveGroup(iface, &net.UDPAddr{IP: group})
}

// defaultMulticastInterface picks the first interface advertising multicast
// support, matching typical single-homed daemon hosts. A nil interface
// falls back to the OS default, which is fine on loopback-only test hosts.
func defaultMulticastInterface() (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagMulticast != 0 && iface.Flags&net.FlagUp != 0 {
			return &iface, nil
		}
	}
	return nil, nil
}
