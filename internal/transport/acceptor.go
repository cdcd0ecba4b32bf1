package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/config"
)

// Handler receives connection lifecycle events. OnConnect fires once
// after accept, OnFrame once per inbound frame, OnDisconnect once when
// the connection ends. An error from any callback ends the connection.
type Handler interface {
	OnConnect(conn directory.Conn) error
	OnFrame(conn directory.Conn, frame []byte) error
	OnDisconnect(conn directory.Conn) error
}

// Acceptor listens for framed TCP connections and feeds each one to a
// Handler.
type Acceptor struct {
	cfg     config.ListenConfig
	handler Handler
	logger  *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	conns    map[string]*Conn
	running  bool
}

// NewAcceptor creates an acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ListenConfig, handler Handler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
		conns:   make(map[string]*Conn),
	}
}

// ListenAndServe starts the TCP listener and accepts connections until
// Stop is called. This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		a.wg.Add(1)
		go a.handleConn(raw)
	}
}

// handleConn runs the read loop for a single connection.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	start := time.Now()
	addr := raw.RemoteAddr().String()

	conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout, a.cfg.MaxFrameSize, a.cfg.SendQueueDepth)
	a.track(conn)
	defer a.untrack(conn)
	defer conn.Close()

	a.logger.Info("client connected",
		zap.String("conn_id", conn.ID()),
		zap.String("remote_addr", addr),
	)

	if err := a.handler.OnConnect(conn); err != nil {
		a.logger.Error("connect handling failed",
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
		)
		return
	}

	err := conn.readFrames(func(frame []byte) error {
		return a.handler.OnFrame(conn, frame)
	})
	conn.Close()

	if derr := a.handler.OnDisconnect(conn); derr != nil {
		a.logger.Warn("disconnect handling failed",
			zap.String("conn_id", conn.ID()),
			zap.Error(derr),
		)
	}

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, ErrConnClosed):
		a.logger.Info("session ended cleanly",
			zap.String("conn_id", conn.ID()),
			zap.Duration("duration", time.Since(start)),
		)
	case errors.Is(err, os.ErrDeadlineExceeded):
		a.logger.Info("session timed out",
			zap.String("conn_id", conn.ID()),
			zap.Duration("duration", time.Since(start)),
		)
	default:
		a.logger.Debug("session ended",
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (a *Acceptor) track(conn *Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conns[conn.ID()] = conn
}

func (a *Acceptor) untrack(conn *Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, conn.ID())
}

// Stop gracefully stops the acceptor: the listener is closed, every
// live connection is closed, and the method waits for all connection
// goroutines to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.quit)
	if a.listener != nil {
		a.listener.Close()
	}
	for _, conn := range a.conns {
		conn.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
