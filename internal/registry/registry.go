// Package registry holds the per-session socket tables described in
// spec §4.7 and §9: pending TCP connects, established TCP sockets, TCP
// listeners, and UDP sockets, each keyed by socket id. Locks are only
// ever held across map operations, never across I/O.
package registry

import (
	"context"
	"net"
	"sync"

	"github.com/jstorrent/iobridge/internal/statsapi"
)

// TCPConn is an established outbound or accepted TCP connection plus the
// bookkeeping needed to cancel its reader/writer goroutines on close.
type TCPConn struct {
	Conn   net.Conn
	Cancel func()
}

// TCPListener is an active server-side TCP listener plus a stop function
// to cancel its accept loop.
type TCPListener struct {
	Listener net.Listener
	Cancel   func()
}

// UDPSocket is a bound UDP socket plus its receive-loop cancel function.
type UDPSocket struct {
	Conn   *net.UDPConn
	Cancel func()
}

// Registry is the set of four typed maps backing one WebSocket session.
// Zero value is not usable; use New.
type Registry struct {
	mu        sync.Mutex
	connects  map[uint32]context.CancelFunc // socket ids with an in-flight TCP_CONNECT
	tcpConns  map[uint32]*TCPConn
	listeners map[uint32]*TCPListener
	udpSocks  map[uint32]*UDPSocket

	nextServerID uint32 // next server-allocated id, starts at 0x10000 per spec

	counters *statsapi.Counters // may be nil in tests
}

// New returns an empty registry for one session. counters may be nil, in
// which case socket lifecycle events are simply not reported to GET /stats.
func New(counters *statsapi.Counters) *Registry {
	return &Registry{
		connects:     make(map[uint32]context.CancelFunc),
		tcpConns:     make(map[uint32]*TCPConn),
		listeners:    make(map[uint32]*TCPListener),
		udpSocks:     make(map[uint32]*UDPSocket),
		nextServerID: 0x10000,
		counters:     counters,
	}
}

// AddBytesSent records n bytes written out to a socket owned by this
// session, for GET /stats.
func (r *Registry) AddBytesSent(n int) {
	if r.counters != nil && n > 0 {
		r.counters.BytesSent.Add(int64(n))
	}
}

// AddBytesReceived records n bytes read in from a socket owned by this
// session, for GET /stats.
func (r *Registry) AddBytesReceived(n int) {
	if r.counters != nil && n > 0 {
		r.counters.BytesReceived.Add(int64(n))
	}
}

// NextServerID allocates the next server-owned socket id (used for
// TCP_ACCEPT results, where the server rather than the client picks the id).
func (r *Registry) NextServerID() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextServerID
	r.nextServerID++
	return id
}

// MarkConnecting records an in-flight TCP_CONNECT and its abort handle, so
// a later TCP_CLOSE for the same socket id can cancel the dial in progress.
func (r *Registry) MarkConnecting(socketID uint32, cancel context.CancelFunc) {
	r.mu.Lock()
	r.connects[socketID] = cancel
	r.mu.Unlock()
	if r.counters != nil {
		r.counters.PendingConnect.Add(1)
	}
}

// ClearConnecting removes socketID's pending-connect entry, reporting
// whether it was still present (false means a concurrent TCP_CLOSE already
// cancelled and removed it).
func (r *Registry) ClearConnecting(socketID uint32) bool {
	r.mu.Lock()
	_, ok := r.connects[socketID]
	delete(r.connects, socketID)
	r.mu.Unlock()
	if ok && r.counters != nil {
		r.counters.PendingConnect.Add(-1)
	}
	return ok
}

func (r *Registry) IsConnecting(socketID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.connects[socketID]
	return ok
}

// CancelConnecting aborts the in-flight TCP_CONNECT for socketID, if any,
// and removes it from the pending-connects map. Reports whether one was
// found.
func (r *Registry) CancelConnecting(socketID uint32) bool {
	r.mu.Lock()
	cancel, ok := r.connects[socketID]
	if ok {
		delete(r.connects, socketID)
	}
	r.mu.Unlock()
	if ok {
		if cancel != nil {
			cancel()
		}
		if r.counters != nil {
			r.counters.PendingConnect.Add(-1)
		}
	}
	return ok
}

func (r *Registry) PutTCP(socketID uint32, c *TCPConn) {
	r.mu.Lock()
	r.tcpConns[socketID] = c
	r.mu.Unlock()
	if r.counters != nil {
		r.counters.TCPSockets.Add(1)
	}
}

func (r *Registry) GetTCP(socketID uint32) (*TCPConn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.tcpConns[socketID]
	return c, ok
}

func (r *Registry) DeleteTCP(socketID uint32) (*TCPConn, bool) {
	r.mu.Lock()
	c, ok := r.tcpConns[socketID]
	if ok {
		delete(r.tcpConns, socketID)
	}
	r.mu.Unlock()
	if ok && r.counters != nil {
		r.counters.TCPSockets.Add(-1)
	}
	return c, ok
}

func (r *Registry) PutListener(serverID uint32, l *TCPListener) {
	r.mu.Lock()
	r.listeners[serverID] = l
	r.mu.Unlock()
	if r.counters != nil {
		r.counters.TCPServers.Add(1)
	}
}

func (r *Registry) GetListener(serverID uint32) (*TCPListener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listeners[serverID]
	return l, ok
}

func (r *Registry) DeleteListener(serverID uint32) (*TCPListener, bool) {
	r.mu.Lock()
	l, ok := r.listeners[serverID]
	if ok {
		delete(r.listeners, serverID)
	}
	r.mu.Unlock()
	if ok && r.counters != nil {
		r.counters.TCPServers.Add(-1)
	}
	return l, ok
}

func (r *Registry) PutUDP(socketID uint32, u *UDPSocket) {
	r.mu.Lock()
	r.udpSocks[socketID] = u
	r.mu.Unlock()
	if r.counters != nil {
		r.counters.UDPSockets.Add(1)
	}
}

func (r *Registry) GetUDP(socketID uint32) (*UDPSocket, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.udpSocks[socketID]
	return u, ok
}

func (r *Registry) DeleteUDP(socketID uint32) (*UDPSocket, bool) {
	r.mu.Lock()
	u, ok := r.udpSocks[socketID]
	if ok {
		delete(r.udpSocks, socketID)
	}
	r.mu.Unlock()
	if ok && r.counters != nil {
		r.counters.UDPSockets.Add(-1)
	}
	return u, ok
}

// CloseAll tears down every socket owned by this session. Called when the
// WebSocket connection ends, per spec §9 "all sockets are torn down".
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.tcpConns
	r.tcpConns = make(map[uint32]*TCPConn)
	listeners := r.listeners
	r.listeners = make(map[uint32]*TCPListener)
	udps := r.udpSocks
	r.udpSocks = make(map[uint32]*UDPSocket)
	connects := r.connects
	r.connects = make(map[uint32]context.CancelFunc)
	r.mu.Unlock()

	if r.counters != nil {
		r.counters.PendingConnect.Add(-int64(len(connects)))
		r.counters.TCPSockets.Add(-int64(len(conns)))
		r.counters.TCPServers.Add(-int64(len(listeners)))
		r.counters.UDPSockets.Add(-int64(len(udps)))
	}

	for _, cancel := range connects {
		if cancel != nil {
			cancel()
		}
	}
	for _, c := range conns {
		if c.Cancel != nil {
			c.Cancel()
		}
		_ = c.Conn.Close()
	}
	for _, l := range listeners {
		if l.Cancel != nil {
			l.Cancel()
		}
		_ = l.Listener.Close()
	}
	for _, u := range udps {
		if u.Cancel != nil {
			u.Cancel()
		}
		_ = u.Conn.Close()
	}
}
