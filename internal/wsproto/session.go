// Package wsproto implements the /io WebSocket handler: the binary
// envelope dispatch loop that multiplexes TCP and UDP sockets over one
// connection, per spec §4.1, §4.7, §9. The single-writer-goroutine and
// safe-close idioms are grounded on server/web/websocket.go's wsSafeConn.
package wsproto

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mordilloSan/go-logger/logger"

	"github.com/jstorrent/iobridge/internal/auth"
	"github.com/jstorrent/iobridge/internal/envelope"
	"github.com/jstorrent/iobridge/internal/registry"
	"github.com/jstorrent/iobridge/internal/statsapi"
	"github.com/jstorrent/iobridge/internal/tcpio"
	"github.com/jstorrent/iobridge/internal/udpio"
	"github.com/jstorrent/iobridge/internal/wireproto"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// outboundBufSize is the bound on the per-session outbound frame channel,
// per spec §9 ("slow consumer" backpressure policy).
const outboundBufSize = 100

// safeConn serializes writes to one gorilla/websocket.Conn and makes Close
// idempotent, mirroring wsSafeConn from the teacher's websocket.go.
type safeConn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (sc *safeConn) writeBinary(data []byte) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (sc *safeConn) Close() error {
	var err error
	sc.closeOnce.Do(func() {
		_ = sc.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = sc.conn.Close()
		sc.closed.Store(true)
	})
	return err
}

func (sc *safeConn) IsClosed() bool {
	return sc.closed.Load()
}

// Session is one /io connection: its auth machine, its socket registry, and
// the outbound frame channel drained by a single writer goroutine.
type Session struct {
	conn *safeConn
	reg  *registry.Registry
	auth *auth.Machine
	out  chan []byte
}

// Emit implements tcpio.Emitter and udpio.Emitter: it queues a frame for
// the writer goroutine, dropping the session if the consumer is too slow
// to keep up rather than blocking the I/O goroutine that produced it.
func (s *Session) Emit(frame []byte) {
	select {
	case s.out <- frame:
	default:
		logger.Warnf("wsproto: outbound queue full, closing session")
		_ = s.conn.Close()
	}
}

// Handler returns the token-bound gin handler for the /io route. counters
// may be nil, in which case WS_CONNECTIONS and the socket counters are not
// reported to GET /stats.
func Handler(token string, counters *statsapi.Counters) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Errorf("wsproto: upgrade failed: %v", err)
			return
		}

		if counters != nil {
			counters.WSConnections.Add(1)
			defer counters.WSConnections.Add(-1)
		}

		sess := &Session{
			conn: &safeConn{conn: conn},
			reg:  registry.New(counters),
			auth: auth.New(token),
			out:  make(chan []byte, outboundBufSize),
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		go sess.writeLoop(ctx)
		sess.readLoop(ctx, cancel)

		sess.reg.CloseAll()
		_ = sess.conn.Close()
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.out:
			if !ok {
				return
			}
			if err := s.conn.writeBinary(frame); err != nil {
				if !s.conn.IsClosed() {
					logger.Debugf("wsproto: write failed: %v", err)
				}
				return
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc) {
	for {
		msgType, data, err := s.conn.conn.ReadMessage()
		if err != nil {
			if isUnexpectedClose(err) {
				logger.Warnf("wsproto: unexpected close: %v", err)
			}
			cancel()
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(data) < envelope.Size {
			continue // spec: frames shorter than 8 bytes are silently dropped
		}
		env, payload, err := envelope.Decode(data)
		if err != nil {
			continue
		}
		if env.Version != envelope.ProtocolVersion {
			_ = s.conn.writeBinary(envelope.Frame(wireproto.OpError, env.RequestID, []byte("unsupported protocol version")))
			_ = s.conn.Close()
			continue
		}
		s.dispatch(ctx, env, payload)
	}
}

func isUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func (s *Session) dispatch(ctx context.Context, env envelope.Envelope, payload []byte) {
	switch env.Opcode {
	case wireproto.OpClientHello:
		s.auth.Hello()
		s.Emit(envelope.Frame(wireproto.OpServerHello, env.RequestID, nil))
		return
	case wireproto.OpAuth:
		ok, err := s.auth.Authenticate(payload)
		if err != nil {
			_ = s.conn.writeBinary(envelope.Frame(wireproto.OpAuthResult, env.RequestID, wireproto.EncodeAuthResult(false, err.Error())))
			_ = s.conn.Close()
			return
		}
		if !ok {
			_ = s.conn.writeBinary(envelope.Frame(wireproto.OpAuthResult, env.RequestID, wireproto.EncodeAuthResult(false, "")))
			_ = s.conn.Close()
			return
		}
		s.Emit(envelope.Frame(wireproto.OpAuthResult, env.RequestID, wireproto.EncodeAuthResult(true, "")))
		return
	}

	if !s.auth.IsAuthed() {
		_ = s.conn.writeBinary(envelope.Frame(wireproto.OpError, env.RequestID, []byte("not authenticated")))
		_ = s.conn.Close()
		return
	}

	switch env.Opcode {
	case wireproto.OpTCPConnect:
		s.handleTCPConnect(ctx, env.RequestID, payload)
	case wireproto.OpTCPSend:
		s.handleTCPSend(payload)
	case wireproto.OpTCPClose:
		s.handleTCPClose(payload)
	case wireproto.OpTCPListen:
		s.handleTCPListen(ctx, env.RequestID, payload)
	case wireproto.OpTCPStopListen:
		s.handleTCPStopListen(payload)
	case wireproto.OpUDPBind:
		s.handleUDPBind(ctx, env.RequestID, payload)
	case wireproto.OpUDPSend:
		s.handleUDPSend(payload)
	case wireproto.OpUDPClose:
		s.handleUDPClose(payload)
	case wireproto.OpUDPJoinMulticast:
		s.handleUDPJoinMulticast(payload)
	case wireproto.OpUDPLeaveMulticast:
		s.handleUDPLeaveMulticast(payload)
	default:
		s.Emit(envelope.Frame(wireproto.OpError, env.RequestID, []byte("unknown opcode")))
	}
}

// handleTCPConnect runs the dial in its own goroutine so the session's read
// loop stays free to read a subsequent TCP_CLOSE and cancel it; see
// CancelConnecting and handleTCPClose.
func (s *Session) handleTCPConnect(ctx context.Context, requestID uint32, payload []byte) {
	req, err := wireproto.DecodeTCPConnect(payload)
	if err != nil {
		s.Emit(envelope.Frame(wireproto.OpError, requestID, []byte(err.Error())))
		return
	}
	connectCtx, cancel := context.WithCancel(ctx)
	s.reg.MarkConnecting(req.SocketID, cancel)

	go func() {
		ok, errno := tcpio.Connect(connectCtx, s.reg, s, req.SocketID, req.Hostname, req.Port)
		if !ok {
			cancel()
		}
		if !s.reg.ClearConnecting(req.SocketID) {
			// TCP_CLOSE already cancelled and cleared this connect; the
			// client isn't waiting on a TCP_CONNECTED response anymore.
			if ok {
				tcpio.Close(s.reg, req.SocketID)
			}
			return
		}

		status := uint8(0)
		if !ok {
			status = 1
		}
		s.Emit(envelope.Frame(wireproto.OpTCPConnected, requestID, wireproto.EncodeTCPConnected(req.SocketID, status, errno)))
	}()
}

func (s *Session) handleTCPSend(payload []byte) {
	socketID, data, err := wireproto.DecodeSocketIDAndData(payload)
	if err != nil {
		return
	}
	if err := tcpio.Send(s.reg, socketID, data); err != nil {
		s.Emit(envelope.Frame(wireproto.OpTCPClose, wireproto.RequestIDAsync, wireproto.EncodeClose(socketID, wireproto.CloseReasonError, 1)))
	}
}

func (s *Session) handleTCPClose(payload []byte) {
	socketID, err := wireproto.DecodeSocketID(payload)
	if err != nil {
		return
	}
	if s.reg.CancelConnecting(socketID) {
		return
	}
	tcpio.Close(s.reg, socketID)
}

func (s *Session) handleTCPListen(ctx context.Context, requestID uint32, payload []byte) {
	req, err := wireproto.DecodeTCPListen(payload)
	if err != nil {
		s.Emit(envelope.Frame(wireproto.OpError, requestID, []byte(err.Error())))
		return
	}
	ok, boundPort, errno := tcpio.Listen(ctx, s.reg, s, req.ServerID, req.BindAddr, req.Port)
	status := uint8(0)
	if !ok {
		status = 1
	}
	s.Emit(envelope.Frame(wireproto.OpTCPListenResult, requestID, wireproto.EncodeTCPListenResult(req.ServerID, status, boundPort, errno)))
}

func (s *Session) handleTCPStopListen(payload []byte) {
	serverID, err := wireproto.DecodeSocketID(payload)
	if err != nil {
		return
	}
	tcpio.StopListen(s.reg, serverID)
}

func (s *Session) handleUDPBind(ctx context.Context, requestID uint32, payload []byte) {
	req, err := wireproto.DecodeUDPBind(payload)
	if err != nil {
		s.Emit(envelope.Frame(wireproto.OpError, requestID, []byte(err.Error())))
		return
	}
	ok, boundPort, errno := udpio.Bind(ctx, s.reg, s, req.SocketID, req.BindAddr, req.Port)
	status := uint8(0)
	if !ok {
		status = 1
	}
	s.Emit(envelope.Frame(wireproto.OpUDPBound, requestID, wireproto.EncodeUDPBound(req.SocketID, status, boundPort, errno)))
}

func (s *Session) handleUDPSend(payload []byte) {
	req, err := wireproto.DecodeUDPSend(payload)
	if err != nil {
		return
	}
	_ = udpio.Send(s.reg, req.SocketID, req.DestAddr, req.DestPort, req.Data)
}

func (s *Session) handleUDPClose(payload []byte) {
	socketID, err := wireproto.DecodeSocketID(payload)
	if err != nil {
		return
	}
	udpio.Close(s.reg, socketID)
}

func (s *Session) handleUDPJoinMulticast(payload []byte) {
	socketID, group, err := wireproto.DecodeMulticastGroup(payload)
	if err != nil {
		return
	}
	if err := udpio.JoinMulticast(s.reg, socketID, group); err != nil {
		logger.Warnf("wsproto: join multicast socket=%d group=%s: %v", socketID, group, err)
	}
}

func (s *Session) handleUDPLeaveMulticast(payload []byte) {
	socketID, group, err := wireproto.DecodeMulticastGroup(payload)
	if err != nil {
		return
	}
	if err := udpio.LeaveMulticast(s.reg, socketID, group); err != nil {
		logger.Warnf("wsproto: leave multicast socket=%d group=%s: %v", socketID, group, err)
	}
}
