// Package auth implements the per-WebSocket-session authentication state
// machine of spec §4.2. A successful AUTH moves a session from Unauthed
// straight to Authed; AwaitAuth is declared but no transition enters it.
package auth

import (
	"crypto/subtle"
	"sync/atomic"

	"github.com/jstorrent/iobridge/internal/wireproto"
)

// State is one of the three states a session's auth machine can be in.
type State int32

const (
	Unauthed State = iota
	AwaitAuth
	Authed
)

// Machine tracks the auth state for a single WebSocket session and
// validates tokens in constant time against the process-wide token.
type Machine struct {
	token string
	state atomic.Int32
}

// New returns a fresh Unauthed machine bound to the process token.
func New(token string) *Machine {
	return &Machine{token: token}
}

func (m *Machine) State() State {
	return State(m.state.Load())
}

func (m *Machine) IsAuthed() bool {
	return m.State() == Authed
}

// Hello handles CLIENT_HELLO: always informational, never changes state.
func (m *Machine) Hello() {}

// Authenticate validates a decoded AUTH payload. On success it transitions
// to Authed and returns (true, nil). On failure it returns (false, nil)
// so the caller can emit AUTH_RESULT with a failure message before closing
// the session; a non-nil error indicates a malformed payload (unknown
// authType), which is also fatal for the session.
func (m *Machine) Authenticate(payload []byte) (bool, error) {
	parsed, err := wireproto.DecodeAuth(payload)
	if err != nil {
		return false, err
	}
	if subtle.ConstantTimeCompare([]byte(parsed.Token), []byte(m.token)) == 1 {
		m.state.Store(int32(Authed))
		return true, nil
	}
	return false, nil
}
