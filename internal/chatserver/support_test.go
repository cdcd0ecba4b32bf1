package chatserver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
	"github.com/cory-johannsen/chatserver/internal/guard"
)

// fakeConn is an in-memory directory.Conn capturing everything sent to
// it.
type fakeConn struct {
	id   string
	sess *guard.GuardedState[session.State]

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:   id,
		sess: guard.NewGuardedState(session.State{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Session() *guard.GuardedState[session.State] { return c.sess }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// received decodes every envelope sent to the connection so far.
func (c *fakeConn) received(t *testing.T) []*chatv1.ServerMessage {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*chatv1.ServerMessage, 0, len(c.sent))
	for _, data := range c.sent {
		msg, err := chatv1.UnmarshalServer(data)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

// notesOfType filters received envelopes down to notification payloads
// of the same type as want.
func notesOfType[T chatv1.ServerPayload](t *testing.T, c *fakeConn) []T {
	t.Helper()
	var out []T
	for _, msg := range c.received(t) {
		if note, ok := msg.Payload.(T); ok {
			out = append(out, note)
		}
	}
	return out
}

func (c *fakeConn) snapshot() session.Snapshot {
	view := c.sess.RLock()
	defer view.Release()
	return view.Value().Snapshot()
}

// env wires a dispatcher to an in-memory store and a real directory.
type env struct {
	store *memStore
	dir   *directory.Directory
	disp  *Dispatcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := newMemStore()
	dir := directory.New(logger)
	return &env{
		store: store,
		dir:   dir,
		disp:  NewDispatcher(store, StandardVerifier{}, dir, DefaultLimits(), logger),
	}
}

func (e *env) dispatch(conn directory.Conn, payload chatv1.ClientPayload) *chatv1.ServerMessage {
	return e.disp.Dispatch(context.Background(), conn, &chatv1.ClientMessage{
		RequestId: "req",
		Payload:   payload,
	})
}

// seedUser creates a salted account whose password is the username with
// a "-pw" suffix.
func (e *env) seedUser(username string) Account {
	salt := username + "-salt"
	return e.store.seedAccount(username, salt, HashCredentials(salt, username+"-pw"), false)
}

// signIn drives the two-step auth flow to completion.
func (e *env) signIn(t *testing.T, conn directory.Conn, username string) {
	t.Helper()
	resp := e.dispatch(conn, &chatv1.InitialAuthRequest{Username: username})
	require.Equal(t, chatv1.StatusSuccess, resp.Status, resp.Message)
	salt := resp.Payload.(*chatv1.SaltInfo).Salt
	resp = e.dispatch(conn, &chatv1.AuthRequest{Hash: HashCredentials(salt, username+"-pw")})
	require.Equal(t, chatv1.StatusSuccess, resp.Status, resp.Message)
}

func (e *env) join(t *testing.T, conn directory.Conn, roomID int64) *chatv1.RoomJoined {
	t.Helper()
	resp := e.dispatch(conn, &chatv1.JoinRoomRequest{RoomId: roomID})
	require.Equal(t, chatv1.StatusSuccess, resp.Status, resp.Message)
	return resp.Payload.(*chatv1.RoomJoined)
}
