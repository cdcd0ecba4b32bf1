package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
	"github.com/cory-johannsen/chatserver/internal/transport"
)

// FrameClient is a length-framed protocol test client for integration
// testing against a running acceptor.
type FrameClient struct {
	conn net.Conn
	t    *testing.T
}

// NewFrameClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected FrameClient or fails the test.
func NewFrameClient(t *testing.T, addr string) *FrameClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	return &FrameClient{conn: conn, t: t}
}

// Send marshals the request into one frame and writes it.
//
// Postcondition: The framed request is written to the connection.
func (c *FrameClient) Send(requestID string, payload chatv1.ClientPayload) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	msg := &chatv1.ClientMessage{RequestId: requestID, Payload: payload}
	if err := transport.WriteFrame(c.conn, chatv1.MarshalClient(msg)); err != nil {
		c.t.Fatalf("sending request %q: %v", requestID, err)
	}
}

// SendRaw writes an arbitrary payload as one frame, bypassing the codec.
func (c *FrameClient) SendRaw(payload []byte) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := transport.WriteFrame(c.conn, payload); err != nil {
		c.t.Fatalf("sending raw frame: %v", err)
	}
}

// Recv reads the next frame and decodes it as a server envelope.
//
// Postcondition: Returns the decoded envelope, or fails on timeout or
// a malformed frame.
func (c *FrameClient) Recv(timeout time.Duration) *chatv1.ServerMessage {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	frame, err := transport.ReadFrame(c.conn, 1<<20)
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	msg, err := chatv1.UnmarshalServer(frame)
	if err != nil {
		c.t.Fatalf("decoding server envelope: %v", err)
	}
	return msg
}

// RecvResponse reads frames until one carries the given request id,
// skipping interleaved notifications.
func (c *FrameClient) RecvResponse(requestID string, timeout time.Duration) *chatv1.ServerMessage {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("no response for request %q within %s", requestID, timeout)
		}
		msg := c.Recv(remaining)
		if msg.RequestId == requestID {
			return msg
		}
	}
}

// Close closes the underlying connection.
func (c *FrameClient) Close() {
	c.conn.Close()
}
