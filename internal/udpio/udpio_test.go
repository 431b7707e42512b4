package udpio

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jstorrent/iobridge/internal/registry"
	"github.com/jstorrent/iobridge/internal/wireproto"
)

type fakeEmitter struct {
	mu     sync.Mutex
	frames [][]byte
	signal chan struct{}
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{signal: make(chan struct{}, 64)}
}

func (f *fakeEmitter) Emit(frame []byte) {
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

func (f *fakeEmitter) waitForFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case <-f.signal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emitted frame")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.frames)
	return f.frames[len(f.frames)-1]
}

func TestBindSendRecv(t *testing.T) {
	reg := registry.New(nil)
	emit := newFakeEmitter()

	ok, boundPort, errno := Bind(context.Background(), reg, emit, 1, "127.0.0.1", 0)
	require.True(t, ok)
	assert.Equal(t, uint32(0), errno)
	require.NotZero(t, boundPort)

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer peer.Close()
	peerPort := peer.LocalAddr().(*net.UDPAddr).Port

	_, err = peer.WriteToUDP([]byte("hello-udp"), &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: int(boundPort)})
	require.NoError(t, err)

	frame := emit.waitForFrame(t)
	socketID, rest, err := wireproto.DecodeSocketIDAndData(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), socketID)
	gotPort := uint16(rest[0]) | uint16(rest[1])<<8
	assert.Equal(t, uint16(peerPort), gotPort)

	Close(reg, 1)
	_, exists := reg.GetUDP(1)
	assert.False(t, exists)
}

func TestSendToUnknownSocketErrors(t *testing.T) {
	reg := registry.New(nil)
	err := Send(reg, 99, "127.0.0.1", 1234, []byte("x"))
	assert.Error(t, err)
}

func TestJoinLeaveMulticastOnUnknownSocketErrors(t *testing.T) {
	reg := registry.New(nil)
	err := JoinMulticast(reg, 404, "239.1.1.1")
	assert.Error(t, err)

	err = LeaveMulticast(reg, 404, "239.1.1.1")
	assert.Error(t, err)
}
