package chatserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
)

// Processor owns the per-connection protocol lifecycle: the Hello on
// connect, decode/dispatch/encode for every frame, and directory
// withdrawal on disconnect. Each entry point schedules onto the
// connection's shard, so everything for one connection runs in arrival
// order on one worker.
type Processor struct {
	dispatcher *Dispatcher
	dir        *directory.Directory
	pool       *ShardPool
	logger     *zap.Logger
}

// NewProcessor creates a Processor.
//
// Precondition: every argument must be non-nil.
func NewProcessor(dispatcher *Dispatcher, dir *directory.Directory, pool *ShardPool, logger *zap.Logger) *Processor {
	return &Processor{
		dispatcher: dispatcher,
		dir:        dir,
		pool:       pool,
		logger:     logger,
	}
}

// OnConnect schedules the Hello handshake for a freshly accepted
// connection.
func (p *Processor) OnConnect(conn directory.Conn) error {
	return p.pool.Submit(conn.ID(), func(ctx context.Context) {
		p.send(conn, &chatv1.ServerMessage{
			Status: chatv1.StatusSuccess,
			Payload: &chatv1.Hello{
				ServerRole:      chatv1.ServerRole,
				ProtocolVersion: chatv1.ProtocolVersion,
			},
		})
	})
}

// OnFrame schedules decoding and dispatch of one framed request.
func (p *Processor) OnFrame(conn directory.Conn, frame []byte) error {
	return p.pool.Submit(conn.ID(), func(ctx context.Context) {
		p.handleFrame(ctx, conn, frame)
	})
}

// OnDisconnect schedules the final directory withdrawal. Scheduling on
// the shard guarantees it runs after every frame the connection already
// submitted.
func (p *Processor) OnDisconnect(conn directory.Conn) error {
	return p.pool.Submit(conn.ID(), func(ctx context.Context) {
		view := conn.Session().RLock()
		snap := view.Value().Snapshot()
		view.Release()

		p.dir.Unregister(conn, snap)
		p.logger.Info("connection closed", zap.String("conn_id", conn.ID()))
	})
}

// handleFrame answers every frame with exactly one response. Malformed
// frames get a generic failure and the connection stays open.
func (p *Processor) handleFrame(ctx context.Context, conn directory.Conn, frame []byte) {
	pinned := p.pool.ShardFor(conn.ID())

	msg, err := chatv1.UnmarshalClient(frame)
	if err != nil {
		p.logger.Warn("malformed frame",
			zap.String("conn_id", conn.ID()),
			zap.Int("size", len(frame)),
			zap.Error(err),
		)
		p.send(conn, fail("malformed request"))
		return
	}

	resp := p.dispatch(ctx, conn, msg)

	// A request must finish on the shard its connection is pinned to;
	// anything else means per-connection ordering is broken.
	if shard, ok := ShardFromContext(ctx); !ok || shard != pinned {
		p.logger.Error("request finished on wrong shard",
			zap.String("conn_id", conn.ID()),
			zap.Int("pinned", pinned),
			zap.Int("actual", shard),
		)
		resp = fail("internal server error")
		resp.RequestId = msg.RequestId
	}
	p.send(conn, resp)
}

// dispatch contains handler panics; the connection survives and receives
// a generic failure.
func (p *Processor) dispatch(ctx context.Context, conn directory.Conn, msg *chatv1.ClientMessage) (resp *chatv1.ServerMessage) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panicked",
				zap.String("conn_id", conn.ID()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			resp = fail("internal server error")
			resp.RequestId = msg.RequestId
		}
	}()
	return p.dispatcher.Dispatch(ctx, conn, msg)
}

func (p *Processor) send(conn directory.Conn, resp *chatv1.ServerMessage) {
	if err := conn.Send(chatv1.MarshalServer(resp)); err != nil {
		p.logger.Debug("dropping response to closed connection",
			zap.String("conn_id", conn.ID()),
			zap.Error(err),
		)
	}
}
