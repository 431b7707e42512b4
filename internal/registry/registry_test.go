package registry

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstorrent/iobridge/internal/statsapi"
)

func TestNewServerIDsStartAt0x10000(t *testing.T) {
	r := New(nil)
	assert.Equal(t, uint32(0x10000), r.NextServerID())
	assert.Equal(t, uint32(0x10001), r.NextServerID())
}

func TestConnectingFlags(t *testing.T) {
	r := New(nil)
	assert.False(t, r.IsConnecting(1))
	r.MarkConnecting(1, func() {})
	assert.True(t, r.IsConnecting(1))
	assert.True(t, r.ClearConnecting(1))
	assert.False(t, r.IsConnecting(1))
	assert.False(t, r.ClearConnecting(1))
}

func TestCancelConnectingInvokesCancelFunc(t *testing.T) {
	r := New(nil)
	canceled := false
	r.MarkConnecting(5, func() { canceled = true })

	assert.True(t, r.CancelConnecting(5))
	assert.True(t, canceled)
	assert.False(t, r.IsConnecting(5))

	assert.False(t, r.CancelConnecting(5))
}

func TestTCPConnLifecycle(t *testing.T) {
	r := New(nil)
	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	canceled := false
	r.PutTCP(1, &TCPConn{Conn: client, Cancel: func() { canceled = true }})

	got, ok := r.GetTCP(1)
	require.True(t, ok)
	assert.Equal(t, client, got.Conn)

	deleted, ok := r.DeleteTCP(1)
	require.True(t, ok)
	assert.False(t, canceled) // DeleteTCP itself doesn't invoke Cancel; caller does
	_ = deleted

	_, ok = r.GetTCP(1)
	assert.False(t, ok)
}

func TestListenerLifecycle(t *testing.T) {
	r := New(nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	r.PutListener(0x10000, &TCPListener{Listener: ln})
	got, ok := r.GetListener(0x10000)
	require.True(t, ok)
	assert.Equal(t, ln, got.Listener)

	_, ok = r.DeleteListener(0x10000)
	assert.True(t, ok)
	_, ok = r.GetListener(0x10000)
	assert.False(t, ok)
}

func TestUDPSocketLifecycle(t *testing.T) {
	r := New(nil)
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	r.PutUDP(2, &UDPSocket{Conn: conn})
	got, ok := r.GetUDP(2)
	require.True(t, ok)
	assert.Equal(t, conn, got.Conn)

	_, ok = r.DeleteUDP(2)
	assert.True(t, ok)
}

func TestCloseAllTearsDownEverySocket(t *testing.T) {
	r := New(nil)

	tcpClient, tcpServer := net.Pipe()
	t.Cleanup(func() { _ = tcpServer.Close() })
	tcpCanceled := false
	r.PutTCP(1, &TCPConn{Conn: tcpClient, Cancel: func() { tcpCanceled = true }})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	lnCanceled := false
	r.PutListener(0x10000, &TCPListener{Listener: ln, Cancel: func() { lnCanceled = true }})

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	udpCanceled := false
	r.PutUDP(2, &UDPSocket{Conn: udpConn, Cancel: func() { udpCanceled = true }})

	connectCanceled := false
	r.MarkConnecting(3, func() { connectCanceled = true })

	r.CloseAll()

	assert.True(t, tcpCanceled)
	assert.True(t, lnCanceled)
	assert.True(t, udpCanceled)
	assert.True(t, connectCanceled)
	assert.False(t, r.IsConnecting(3))

	_, ok := r.GetTCP(1)
	assert.False(t, ok)
	_, ok = r.GetListener(0x10000)
	assert.False(t, ok)
	_, ok = r.GetUDP(2)
	assert.False(t, ok)

	// closed connections should now reject writes
	_, err = tcpClient.Write([]byte("x"))
	assert.Error(t, err)
}

func TestCountersTrackSocketLifecycle(t *testing.T) {
	counters := statsapi.NewCounters()
	r := New(counters)

	client, server := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })

	cancel := func() {}
	r.MarkConnecting(1, cancel)
	assert.Equal(t, int64(1), counters.PendingConnect.Load())
	r.ClearConnecting(1)
	assert.Equal(t, int64(0), counters.PendingConnect.Load())

	r.PutTCP(1, &TCPConn{Conn: client})
	assert.Equal(t, int64(1), counters.TCPSockets.Load())
	r.AddBytesSent(10)
	r.AddBytesReceived(20)
	assert.Equal(t, int64(10), counters.BytesSent.Load())
	assert.Equal(t, int64(20), counters.BytesReceived.Load())
	r.DeleteTCP(1)
	assert.Equal(t, int64(0), counters.TCPSockets.Load())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r.PutListener(0x10000, &TCPListener{Listener: ln})
	assert.Equal(t, int64(1), counters.TCPServers.Load())
	r.DeleteListener(0x10000)
	assert.Equal(t, int64(0), counters.TCPServers.Load())

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	r.PutUDP(2, &UDPSocket{Conn: udpConn})
	assert.Equal(t, int64(1), counters.UDPSockets.Load())
	r.DeleteUDP(2)
	assert.Equal(t, int64(0), counters.UDPSockets.Load())
}
