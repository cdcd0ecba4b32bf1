package chatserver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
	"github.com/cory-johannsen/chatserver/internal/guard"
)

// Limits bounds client-supplied strings and history queries.
type Limits struct {
	MaxUsernameLength int
	MaxRoomNameLength int
	MaxMessageLength  int
	MaxHashLength     int
	HistoryDefault    int
	HistoryMax        int
}

// DefaultLimits returns the limits used when the configuration does not
// override them.
func DefaultLimits() Limits {
	return Limits{
		MaxUsernameLength: 64,
		MaxRoomNameLength: 128,
		MaxMessageLength:  1024,
		MaxHashLength:     128,
		HistoryDefault:    50,
		HistoryMax:        200,
	}
}

// Dispatcher routes decoded client requests to their handlers. One
// Dispatcher serves every connection; all per-connection state lives in
// the session attached to the connection.
type Dispatcher struct {
	store    Store
	verifier CredentialVerifier
	dir      *directory.Directory
	limits   Limits
	logger   *zap.Logger
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher.
//
// Precondition: every argument must be non-nil.
func NewDispatcher(store Store, verifier CredentialVerifier, dir *directory.Directory, limits Limits, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		verifier: verifier,
		dir:      dir,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch routes one request to its handler and returns the single
// typed response. The switch is exhaustive over the client variant set;
// an envelope with no payload gets a generic failure. Dispatch never
// returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, conn directory.Conn, msg *chatv1.ClientMessage) *chatv1.ServerMessage {
	f := &facade{conn: conn, dir: d.dir}

	var resp *chatv1.ServerMessage
	switch req := msg.Payload.(type) {
	case *chatv1.InitialAuthRequest:
		resp = d.initialAuth(ctx, conn, req)
	case *chatv1.AuthRequest:
		resp = d.auth(ctx, conn, f, req)
	case *chatv1.InitialRegisterRequest:
		resp = d.initialRegister(ctx, conn, req)
	case *chatv1.RegisterRequest:
		resp = d.register(ctx, conn, req)
	case *chatv1.LogoutRequest:
		resp = d.logout(ctx, conn, f)
	case *chatv1.CreateRoomRequest:
		resp = d.createRoom(ctx, conn, req)
	case *chatv1.JoinRoomRequest:
		resp = d.joinRoom(ctx, conn, f, req)
	case *chatv1.LeaveRoomRequest:
		resp = d.leaveRoom(ctx, conn, f)
	case *chatv1.SendMessageRequest:
		resp = d.sendMessage(ctx, conn, f, req)
	case *chatv1.ListRoomsRequest:
		resp = d.listRooms(ctx, conn)
	case *chatv1.ListUsersRequest:
		resp = d.listUsers(ctx, conn, f)
	case *chatv1.ListMessagesRequest:
		resp = d.listMessages(ctx, conn, req)
	case *chatv1.AssignRoleRequest:
		resp = d.assignRole(ctx, conn, f, req)
	case *chatv1.RenameRoomRequest:
		resp = d.renameRoom(ctx, conn, f, req)
	case *chatv1.DeleteRoomRequest:
		resp = d.deleteRoom(ctx, conn, f)
	case nil:
		resp = fail("empty request")
	default:
		resp = fail("unsupported request")
	}

	resp.RequestId = msg.RequestId
	return resp
}

// historyLimit clamps a client-supplied history limit to the configured
// bounds; zero selects the default.
func (d *Dispatcher) historyLimit(requested int32) int {
	if requested <= 0 {
		return d.limits.HistoryDefault
	}
	if int(requested) > d.limits.HistoryMax {
		return d.limits.HistoryMax
	}
	return int(requested)
}

// storageFailure logs the underlying error and returns the sanitized
// response the client sees instead.
func (d *Dispatcher) storageFailure(op string, err error) *chatv1.ServerMessage {
	d.logger.Error("storage operation failed", zap.String("op", op), zap.Error(err))
	return fail("internal storage error")
}

func ok(message string, payload chatv1.ServerPayload) *chatv1.ServerMessage {
	return &chatv1.ServerMessage{Status: chatv1.StatusSuccess, Message: message, Payload: payload}
}

func fail(message string) *chatv1.ServerMessage {
	return &chatv1.ServerMessage{Status: chatv1.StatusFailure, Message: message}
}

func unauthorized(message string) *chatv1.ServerMessage {
	return &chatv1.ServerMessage{Status: chatv1.StatusUnauthorized, Message: message}
}

func notFound(message string) *chatv1.ServerMessage {
	return &chatv1.ServerMessage{Status: chatv1.StatusNotFound, Message: message}
}

// lockSession takes the exclusive session view of conn and asserts that
// the state it exposes is the one the connection's guard actually owns.
// A mismatch means a handler mixed up views from different connections,
// which is unrecoverable.
func lockSession(conn directory.Conn) (*guard.ExclusiveView[session.State], *session.State) {
	view := conn.Session().Lock()
	st := view.Value()
	if !conn.Session().Guards(st) {
		view.Release()
		panic(fmt.Sprintf("conn %s: session view does not guard its own state", conn.ID()))
	}
	return view, st
}

// readSnapshot takes the shared session view just long enough to copy
// the state.
func readSnapshot(conn directory.Conn) session.Snapshot {
	view := conn.Session().RLock()
	defer view.Release()
	return view.Value().Snapshot()
}
