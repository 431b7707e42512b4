package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMachineStartsUnauthed(t *testing.T) {
	m := New("s3cret")
	assert.Equal(t, Unauthed, m.State())
	assert.False(t, m.IsAuthed())
}

func TestAuthenticateSuccessType1(t *testing.T) {
	m := New("s3cret")
	payload := append([]byte{1}, []byte("s3cret")...)

	ok, err := m.Authenticate(payload)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.IsAuthed())
	assert.Equal(t, Authed, m.State())
}

func TestAuthenticateSuccessType0NullSeparated(t *testing.T) {
	m := New("s3cret")
	payload := append([]byte{0}, []byte("s3cret\x00ext\x00install")...)

	ok, err := m.Authenticate(payload)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, m.IsAuthed())
}

func TestAuthenticateWrongTokenFails(t *testing.T) {
	m := New("s3cret")
	payload := append([]byte{1}, []byte("wrong")...)

	ok, err := m.Authenticate(payload)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, m.IsAuthed())
	assert.Equal(t, Unauthed, m.State())
}

func TestAuthenticateMalformedPayloadErrors(t *testing.T) {
	m := New("s3cret")

	_, err := m.Authenticate(nil)
	assert.Error(t, err)

	_, err = m.Authenticate([]byte{9, 'x'})
	assert.Error(t, err)
}

func TestHelloIsNoOp(t *testing.T) {
	m := New("s3cret")
	m.Hello()
	assert.Equal(t, Unauthed, m.State())
}
