package transport

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/guard"
)

// ErrConnClosed is returned by Send on a closed connection.
var ErrConnClosed = errors.New("connection closed")

// ErrSendQueueFull is returned when a connection cannot keep up with
// its outbound traffic. The connection is closed when this happens so
// broadcast paths never wait on a stalled peer.
var ErrSendQueueFull = errors.New("send queue full")

// Conn is one framed TCP connection. It satisfies directory.Conn: a
// stable id, a guarded session, and fire-and-forget Send. Outbound
// frames pass through a single writer goroutine, which preserves
// per-connection delivery order.
type Conn struct {
	id   string
	raw  net.Conn
	sess *guard.GuardedState[session.State]

	readTimeout  time.Duration
	writeTimeout time.Duration
	maxFrame     int

	sendCh    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	writerWg  sync.WaitGroup
}

// NewConn wraps an accepted TCP connection and starts its writer
// goroutine.
//
// Precondition: raw must be a valid, open network connection; queueDepth
// and maxFrame must be positive.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration, maxFrame, queueDepth int) *Conn {
	c := &Conn{
		id:           uuid.NewString(),
		raw:          raw,
		sess:         guard.NewGuardedState(session.State{}),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		maxFrame:     maxFrame,
		sendCh:       make(chan []byte, queueDepth),
		closed:       make(chan struct{}),
	}
	c.writerWg.Add(1)
	go c.writeLoop()
	return c
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Session returns the guarded per-connection session state.
func (c *Conn) Session() *guard.GuardedState[session.State] { return c.sess }

// Send queues one frame for delivery. A full queue means the peer has
// stalled; the connection is closed and the frame dropped.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.closed:
		return ErrConnClosed
	default:
		c.Close()
		return ErrSendQueueFull
	}
}

// readFrames delivers inbound frames to fn until the connection fails,
// closes, or fn returns an error.
func (c *Conn) readFrames(fn func(frame []byte) error) error {
	reader := bufio.NewReaderSize(c.raw, 4096)
	for {
		select {
		case <-c.closed:
			return ErrConnClosed
		default:
		}
		if c.readTimeout > 0 {
			_ = c.raw.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		frame, err := ReadFrame(reader, c.maxFrame)
		if err != nil {
			return err
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
}

func (c *Conn) writeLoop() {
	defer c.writerWg.Done()
	for {
		select {
		case data := <-c.sendCh:
			if c.writeTimeout > 0 {
				_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := WriteFrame(c.raw, data); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Close shuts the connection down. Safe to call multiple times and from
// any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.raw.Close()
	})
}

// Closed reports whether the connection has been closed.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// RemoteAddr returns the remote network address of the peer.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }
