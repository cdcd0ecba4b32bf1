package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/config"
)

// echoHandler answers every frame with the same bytes.
type echoHandler struct {
	connects    atomic.Int32
	disconnects atomic.Int32
}

func (h *echoHandler) OnConnect(conn directory.Conn) error {
	h.connects.Add(1)
	return nil
}

func (h *echoHandler) OnFrame(conn directory.Conn, frame []byte) error {
	return conn.Send(append([]byte(nil), frame...))
}

func (h *echoHandler) OnDisconnect(conn directory.Conn) error {
	h.disconnects.Add(1)
	return nil
}

func testListenConfig() config.ListenConfig {
	return config.ListenConfig{
		Host:           "127.0.0.1",
		Port:           0, // random port
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxFrameSize:   1024,
		SendQueueDepth: 16,
	}
}

func startAcceptor(t *testing.T, handler Handler) (*Acceptor, string) {
	t.Helper()
	acc := NewAcceptor(testListenConfig(), handler, zaptest.NewLogger(t))
	go func() {
		_ = acc.ListenAndServe()
	}()

	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			return acc, acc.Addr()
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestAcceptorEchoSession(t *testing.T) {
	handler := &echoHandler{}
	acc, addr := startAcceptor(t, handler)
	defer acc.Stop()

	client, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, WriteFrame(client, []byte("ping")))
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := ReadFrame(client, 1024)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)

	client.Close()
	require.Eventually(t, func() bool {
		return handler.disconnects.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), handler.connects.Load())
}

func TestAcceptorRejectsOversizedFrame(t *testing.T) {
	handler := &echoHandler{}
	acc, addr := startAcceptor(t, handler)
	defer acc.Stop()

	client, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, WriteFrame(client, make([]byte, 2048)))

	// The server drops the connection instead of reading the payload.
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = client.Read(buf)
	assert.Error(t, err)
}

func TestAcceptorMultipleClients(t *testing.T) {
	handler := &echoHandler{}
	acc, addr := startAcceptor(t, handler)

	const numClients = 3
	var wg sync.WaitGroup
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client, err := net.DialTimeout("tcp", addr, 2*time.Second)
			require.NoError(t, err)
			defer client.Close()

			require.NoError(t, WriteFrame(client, []byte("hello")))
			_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
			got, err := ReadFrame(client, 1024)
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), got)
		}()
	}
	wg.Wait()

	acc.Stop()
	assert.Equal(t, int32(numClients), handler.connects.Load())
	assert.Equal(t, int32(numClients), handler.disconnects.Load())
}

func TestAcceptorStopClosesConnections(t *testing.T) {
	handler := &echoHandler{}
	acc, addr := startAcceptor(t, handler)

	client, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	// Confirm the session is live before stopping.
	require.NoError(t, WriteFrame(client, []byte("up")))
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = ReadFrame(client, 1024)
	require.NoError(t, err)

	acc.Stop()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	_, err = client.Read(buf)
	assert.Error(t, err, "connection must be closed by Stop")
	assert.False(t, acc.IsRunning())
}
