// Package tcpio implements the TCP half of the socket multiplexer: outbound
// connect, listen/accept, send, and close, per spec §4.3-§4.5. Grounded on
// the split read/write task shape of original_source/native-host/io-daemon/
// src/ws.rs, translated to goroutines and a sent-frame channel.
package tcpio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mordilloSan/go-logger/logger"

	"github.com/jstorrent/iobridge/internal/registry"
	"github.com/jstorrent/iobridge/internal/wireproto"
)

// ConnectTimeout bounds how long an outbound TCP_CONNECT may take.
const ConnectTimeout = 30 * time.Second

// readBufSize matches the 8192-byte read buffer of the original daemon.
const readBufSize = 8192

// Emitter sends an encoded frame to the session's single writer goroutine.
// Implementations must never block the caller for long; wsproto provides
// one backed by a bounded channel.
type Emitter interface {
	Emit(frame []byte)
}

// Connect dials hostname:port and, on success, starts a reader goroutine
// that emits TCP_RECV frames and a TCP_CLOSE frame when the peer hangs up.
// It registers the connection in reg under socketID. The TCP_CONNECTED
// response is emitted synchronously by the caller using the returned status.
func Connect(ctx context.Context, reg *registry.Registry, emit Emitter, socketID uint32, host string, port uint16) (ok bool, errno uint32) {
	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)))
	if err != nil {
		logger.Warnf("tcpio: connect socket=%d host=%s port=%d failed: %v", socketID, host, port, err)
		return false, 1
	}

	connCtx, connCancel := context.WithCancel(ctx)
	reg.PutTCP(socketID, &registry.TCPConn{Conn: conn, Cancel: connCancel})
	go readLoop(connCtx, reg, conn, emit, socketID)
	return true, 0
}

// Send writes data to the socket identified by socketID.
func Send(reg *registry.Registry, socketID uint32, data []byte) error {
	c, ok := reg.GetTCP(socketID)
	if !ok {
		return fmt.Errorf("tcpio: unknown socket %d", socketID)
	}
	n, err := c.Conn.Write(data)
	reg.AddBytesSent(n)
	return err
}

// Close closes the socket identified by socketID and drops it from reg.
// No TCP_CLOSE frame is emitted for it: the reader goroutine's context is
// cancelled before the connection is closed, so the reader exits silently.
func Close(reg *registry.Registry, socketID uint32) {
	c, ok := reg.DeleteTCP(socketID)
	if !ok {
		return
	}
	if c.Cancel != nil {
		c.Cancel()
	}
	_ = c.Conn.Close()
}

func readLoop(ctx context.Context, reg *registry.Registry, conn net.Conn, emit Emitter, socketID uint32) {
	buf := make([]byte, readBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			reg.AddBytesReceived(n)
			frame := make([]byte, n)
			copy(frame, buf[:n])
			emit.Emit(wireproto.EncodeTCPRecv(socketID, frame))
		}
		if err != nil {
			reason := uint8(wireproto.CloseReasonNormal)
			errno := uint32(0)
			select {
			case <-ctx.Done():
			default:
				if !errors.Is(err, io.EOF) {
					reason = wireproto.CloseReasonError
					errno = 1
				}
				emit.Emit(wireproto.EncodeClose(socketID, reason, errno))
			}
			return
		}
	}
}

// Listen opens a TCP listener bound to bindAddr:port (empty bindAddr means
// all interfaces) and starts an accept loop that emits TCP_ACCEPT frames
// for each inbound connection, registering each under a freshly allocated
// server-owned socket id.
func Listen(ctx context.Context, reg *registry.Registry, emit Emitter, serverID uint32, bindAddr string, port uint16) (ok bool, boundPort uint16, errno uint32) {
	addr := net.JoinHostPort(bindAddr, fmt.Sprintf("%d", port))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		logger.Warnf("tcpio: listen server=%d addr=%s failed: %v", serverID, addr, err)
		return false, 0, 1
	}

	tcpAddr, _ := ln.Addr().(*net.TCPAddr)
	actualPort := uint16(0)
	if tcpAddr != nil {
		actualPort = uint16(tcpAddr.Port)
	}

	listenCtx, listenCancel := context.WithCancel(ctx)
	reg.PutListener(serverID, &registry.TCPListener{Listener: ln, Cancel: listenCancel})
	go acceptLoop(listenCtx, ln, reg, emit, serverID)
	return true, actualPort, 0
}

func acceptLoop(ctx context.Context, ln net.Listener, reg *registry.Registry, emit Emitter, serverID uint32) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warnf("tcpio: accept on server=%d failed: %v", serverID, err)
				return
			}
		}

		socketID := reg.NextServerID()
		connCtx, connCancel := context.WithCancel(ctx)
		reg.PutTCP(socketID, &registry.TCPConn{Conn: conn, Cancel: connCancel})

		remotePort := uint16(0)
		if ra, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
			remotePort = uint16(ra.Port)
		}
		// TCP_ACCEPT must reach the client before any TCP_RECV/TCP_CLOSE for
		// this socket id, so emit it synchronously before the reader starts.
		emit.Emit(wireproto.EncodeTCPAccept(serverID, socketID, remotePort, conn.RemoteAddr().String()))
		go readLoop(connCtx, reg, conn, emit, socketID)
	}
}

// StopListen stops the listener identified by serverID and drops it from reg.
func StopListen(reg *registry.Registry, serverID uint32) {
	l, ok := reg.DeleteListener(serverID)
	if !ok {
		return
	}
	if l.Cancel != nil {
		l.Cancel()
	}
	_ = l.Listener.Close()
}
