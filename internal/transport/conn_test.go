package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/chatserver/internal/chat/session"
)

func TestConnSendPreservesOrder(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConn(server, 0, 0, 1024, 16)
	defer conn.Close()
	defer client.Close()

	go func() {
		for i := 0; i < 5; i++ {
			_ = conn.Send([]byte{byte(i)})
		}
	}()

	for i := 0; i < 5; i++ {
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		frame, err := ReadFrame(client, 1024)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, frame)
	}
}

func TestConnSendAfterClose(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewConn(server, 0, 0, 1024, 16)

	conn.Close()

	assert.ErrorIs(t, conn.Send([]byte("late")), ErrConnClosed)
	assert.True(t, conn.Closed())
}

func TestConnStalledPeerIsDropped(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewConn(server, 0, 0, 1024, 1)

	// The client never reads, so the writer stalls and the tiny queue
	// fills up.
	var sendErr error
	for i := 0; i < 10; i++ {
		if sendErr = conn.Send([]byte("x")); sendErr != nil {
			break
		}
	}

	require.Error(t, sendErr)
	assert.True(t, conn.Closed(), "a stalled connection must be closed")
}

func TestConnIDsAreUnique(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	connA := NewConn(a, 0, 0, 1024, 1)
	connB := NewConn(b, 0, 0, 1024, 1)
	defer connA.Close()
	defer connB.Close()

	assert.NotEqual(t, connA.ID(), connB.ID())
}

func TestConnSessionStartsUnauthenticated(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewConn(server, 0, 0, 1024, 1)
	defer conn.Close()

	view := conn.Session().RLock()
	defer view.Release()
	assert.Equal(t, session.Unauthenticated, view.Value().Phase)
	assert.Nil(t, view.Value().Identity)
}
