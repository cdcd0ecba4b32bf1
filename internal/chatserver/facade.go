package chatserver

import (
	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
)

// facade binds the shared connection directory and the wire codec to a
// single connection for the duration of one request. Handlers never
// touch the directory or the codec directly; everything they announce
// goes through here, already enveloped.
type facade struct {
	conn directory.Conn
	dir  *directory.Directory
}

func (f *facade) register(userID int64) {
	f.dir.Register(userID, f.conn)
}

func (f *facade) unregister(snap session.Snapshot) {
	f.dir.Unregister(f.conn, snap)
}

func (f *facade) joinRoom(roomID int64) {
	f.dir.JoinRoom(roomID, f.conn)
}

func (f *facade) leaveRoom(snap session.Snapshot) {
	f.dir.LeaveRoom(f.conn, snap)
}

func (f *facade) usersInRoom(roomID int64, snap session.Snapshot) []directory.Member {
	return f.dir.UsersInRoom(roomID, f.conn, snap)
}

func (f *facade) setRoomRole(userID, roomID int64, role session.Role) {
	f.dir.SetRoomRole(userID, roomID, role)
}

// announce broadcasts a notification to every connection in the room,
// including the requester's.
func (f *facade) announce(roomID int64, note chatv1.ServerPayload) {
	f.dir.SendToRoom(roomID, marshalNote(note))
}

// announceToOthers broadcasts a notification to the room, skipping the
// requester's connection, which already receives the typed response.
func (f *facade) announceToOthers(roomID int64, note chatv1.ServerPayload) {
	f.dir.SendToRoomExcept(roomID, marshalNote(note), f.conn)
}

// detachRoom atomically detaches every member connection from a deleted
// room and notifies the detached members other than the requester.
func (f *facade) detachRoom(roomID int64) {
	data := marshalNote(&chatv1.RoomDeleted{RoomId: roomID})
	for _, conn := range f.dir.OnRoomDeleted(roomID) {
		if conn.ID() == f.conn.ID() {
			continue
		}
		// Errors mean the connection is gone; delivery is best effort.
		_ = conn.Send(data)
	}
}

// marshalNote wraps a notification payload in a success envelope with no
// request id.
func marshalNote(note chatv1.ServerPayload) []byte {
	return chatv1.MarshalServer(&chatv1.ServerMessage{
		Status:  chatv1.StatusSuccess,
		Payload: note,
	})
}
