package chatserver

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
)

func TestCreateRoom(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")

	resp := e.dispatch(conn, &chatv1.CreateRoomRequest{Name: "lobby"})

	require.Equal(t, chatv1.StatusSuccess, resp.Status)
	list := resp.Payload.(*chatv1.RoomList)
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, "lobby", list.Rooms[0].Name)
	assert.Equal(t, alice.ID, list.Rooms[0].OwnerId)

	resp = e.dispatch(conn, &chatv1.CreateRoomRequest{Name: "lobby"})
	assert.Equal(t, chatv1.StatusFailure, resp.Status)
}

func TestCreateRoom_RequiresAuth(t *testing.T) {
	e := newEnv(t)
	conn := newFakeConn("c1")

	resp := e.dispatch(conn, &chatv1.CreateRoomRequest{Name: "lobby"})

	assert.Equal(t, chatv1.StatusUnauthorized, resp.Status)
}

func TestJoinRoom_OwnerGetsOwnerRole(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	room := e.store.seedRoom("lobby", alice.ID)
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")

	joined := e.join(t, conn, room.ID)

	assert.Equal(t, int32(session.RoleOwner), joined.Role)
	snap := conn.snapshot()
	require.NotNil(t, snap.Room)
	assert.Equal(t, room.ID, snap.Room.ID)
	assert.Equal(t, session.RoleOwner, snap.Room.Role)
}

func TestJoinRoom_AdminOutranksOwner(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	salt := "root-salt"
	e.store.seedAccount("root", salt, HashCredentials(salt, "root-pw"), true)
	room := e.store.seedRoom("lobby", alice.ID)
	conn := newFakeConn("c1")
	e.signIn(t, conn, "root")

	joined := e.join(t, conn, room.ID)

	assert.Equal(t, int32(session.RoleAdmin), joined.Role)
}

func TestJoinRoom_NotFound(t *testing.T) {
	e := newEnv(t)
	e.seedUser("alice")
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")

	resp := e.dispatch(conn, &chatv1.JoinRoomRequest{RoomId: 404})

	assert.Equal(t, chatv1.StatusNotFound, resp.Status)
	assert.Nil(t, conn.snapshot().Room)
}

func TestJoinRoom_SecondRoomRejected(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	lobby := e.store.seedRoom("lobby", alice.ID)
	den := e.store.seedRoom("den", alice.ID)
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")
	e.join(t, conn, lobby.ID)

	resp := e.dispatch(conn, &chatv1.JoinRoomRequest{RoomId: den.ID})

	assert.Equal(t, chatv1.StatusFailure, resp.Status)
	assert.Equal(t, lobby.ID, conn.snapshot().Room.ID)
}

func TestJoinAndLeave_Broadcasts(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	bob := e.seedUser("bob")
	room := e.store.seedRoom("lobby", alice.ID)

	connA := newFakeConn("cA")
	connB := newFakeConn("cB")
	e.signIn(t, connA, "alice")
	e.signIn(t, connB, "bob")
	e.join(t, connA, room.ID)
	e.join(t, connB, room.ID)

	events := notesOfType[*chatv1.UserEvent](t, connA)
	require.Len(t, events, 1)
	assert.Equal(t, bob.ID, events[0].UserId)
	assert.True(t, events[0].Joined)

	resp := e.dispatch(connB, &chatv1.LeaveRoomRequest{})
	require.Equal(t, chatv1.StatusSuccess, resp.Status)
	assert.Nil(t, connB.snapshot().Room)

	events = notesOfType[*chatv1.UserEvent](t, connA)
	require.Len(t, events, 2)
	assert.Equal(t, bob.ID, events[1].UserId)
	assert.False(t, events[1].Joined)
}

func TestConcurrentJoins_ListAndDeliveryConsistent(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	bob := e.seedUser("bob")
	e.seedUser("mallory")
	room := e.store.seedRoom("room7", alice.ID)

	connA := newFakeConn("cA")
	connB := newFakeConn("cB")
	outsider := newFakeConn("cM")
	e.signIn(t, connA, "alice")
	e.signIn(t, connB, "bob")
	e.signIn(t, outsider, "mallory")

	var wg sync.WaitGroup
	for _, conn := range []*fakeConn{connA, connB} {
		wg.Add(1)
		go func(conn *fakeConn) {
			defer wg.Done()
			resp := e.dispatch(conn, &chatv1.JoinRoomRequest{RoomId: room.ID})
			assert.Equal(t, chatv1.StatusSuccess, resp.Status)
		}(conn)
	}
	wg.Wait()

	resp := e.dispatch(connA, &chatv1.ListUsersRequest{})
	require.Equal(t, chatv1.StatusSuccess, resp.Status)
	list := resp.Payload.(*chatv1.UserList)
	require.Len(t, list.Users, 2)
	assert.Equal(t, alice.ID, list.Users[0].Id)
	assert.Equal(t, bob.ID, list.Users[1].Id)

	resp = e.dispatch(connA, &chatv1.SendMessageRequest{Text: "hello room"})
	require.Equal(t, chatv1.StatusSuccess, resp.Status)

	assert.Len(t, notesOfType[*chatv1.ChatMessage](t, connB), 1)
	assert.Empty(t, notesOfType[*chatv1.ChatMessage](t, outsider))
}

func TestSendMessage_PersistsAndEchoes(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	room := e.store.seedRoom("lobby", alice.ID)
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")
	e.join(t, conn, room.ID)

	resp := e.dispatch(conn, &chatv1.SendMessageRequest{Text: "first!"})

	require.Equal(t, chatv1.StatusSuccess, resp.Status)
	echo := resp.Payload.(*chatv1.ChatMessage)
	assert.Equal(t, "first!", echo.Text)
	assert.Equal(t, alice.ID, echo.UserId)
	assert.Equal(t, 1, e.store.messageCount(room.ID))
}

func TestSendMessage_RequiresRoom(t *testing.T) {
	e := newEnv(t)
	e.seedUser("alice")
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")

	resp := e.dispatch(conn, &chatv1.SendMessageRequest{Text: "into the void"})

	assert.Equal(t, chatv1.StatusFailure, resp.Status)
}

func TestSendMessage_RejectsEmptyText(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	room := e.store.seedRoom("lobby", alice.ID)
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")
	e.join(t, conn, room.ID)

	resp := e.dispatch(conn, &chatv1.SendMessageRequest{})

	assert.Equal(t, chatv1.StatusFailure, resp.Status)
	assert.Zero(t, e.store.messageCount(room.ID))
}

func TestListRooms(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	e.store.seedRoom("lobby", alice.ID)
	e.store.seedRoom("den", alice.ID)
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")

	resp := e.dispatch(conn, &chatv1.ListRoomsRequest{})

	require.Equal(t, chatv1.StatusSuccess, resp.Status)
	assert.Len(t, resp.Payload.(*chatv1.RoomList).Rooms, 2)
}

func TestListMessages_LimitAndOrder(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	room := e.store.seedRoom("lobby", alice.ID)
	conn := newFakeConn("c1")
	e.signIn(t, conn, "alice")
	e.join(t, conn, room.ID)

	for i := 0; i < 5; i++ {
		resp := e.dispatch(conn, &chatv1.SendMessageRequest{Text: fmt.Sprintf("msg %d", i)})
		require.Equal(t, chatv1.StatusSuccess, resp.Status)
	}

	resp := e.dispatch(conn, &chatv1.ListMessagesRequest{Limit: 3})
	require.Equal(t, chatv1.StatusSuccess, resp.Status)
	list := resp.Payload.(*chatv1.MessageList)
	require.Len(t, list.Messages, 3)
	assert.Equal(t, "msg 2", list.Messages[0].Text)
	assert.Equal(t, "msg 4", list.Messages[2].Text)
	assert.Equal(t, "alice", list.Messages[0].AuthorName)
}

func TestRenameRoom_OwnerOnly(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	e.seedUser("bob")
	room := e.store.seedRoom("lobby", alice.ID)

	connA := newFakeConn("cA")
	connB := newFakeConn("cB")
	e.signIn(t, connA, "alice")
	e.signIn(t, connB, "bob")
	e.join(t, connA, room.ID)
	e.join(t, connB, room.ID)

	resp := e.dispatch(connB, &chatv1.RenameRoomRequest{Name: "bob-cave"})
	assert.Equal(t, chatv1.StatusFailure, resp.Status)

	resp = e.dispatch(connA, &chatv1.RenameRoomRequest{Name: "salon"})
	require.Equal(t, chatv1.StatusSuccess, resp.Status)

	renamed, ok := e.store.room(room.ID)
	require.True(t, ok)
	assert.Equal(t, "salon", renamed.Name)

	notes := notesOfType[*chatv1.RoomRenamed](t, connB)
	require.Len(t, notes, 1)
	assert.Equal(t, "salon", notes[0].Name)
}

func TestDeleteRoom_NonOwnerFails(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	e.seedUser("bob")
	room := e.store.seedRoom("lobby", alice.ID)

	connA := newFakeConn("cA")
	connB := newFakeConn("cB")
	e.signIn(t, connA, "alice")
	e.signIn(t, connB, "bob")
	e.join(t, connA, room.ID)
	e.join(t, connB, room.ID)
	resp := e.dispatch(connA, &chatv1.SendMessageRequest{Text: "keep me"})
	require.Equal(t, chatv1.StatusSuccess, resp.Status)

	resp = e.dispatch(connB, &chatv1.DeleteRoomRequest{})

	assert.Equal(t, chatv1.StatusFailure, resp.Status)
	_, ok := e.store.room(room.ID)
	assert.True(t, ok, "room must survive a rejected delete")
	assert.Equal(t, 1, e.store.messageCount(room.ID))
	assert.Equal(t, 2, e.dir.RoomOccupancy(room.ID))
}

func TestDeleteRoom_DetachesAndNotifiesMembers(t *testing.T) {
	e := newEnv(t)
	alice := e.seedUser("alice")
	e.seedUser("bob")
	room := e.store.seedRoom("lobby", alice.ID)

	connA := newFakeConn("cA")
	connB := newFakeConn("cB")
	e.signIn(t, connA, "alice")
	e.signIn(t, connB, "bob")
	e.join(t, connA, room.ID)
	e.join(t, connB, room.ID)

	resp := e.dispatch(connA, &chatv1.DeleteRoomRequest{})

	require.Equal(t, chatv1.StatusSuccess, resp.Status)
	_, ok := e.store.room(room.ID)
	assert.False(t, ok)
	assert.Zero(t, e.dir.RoomOccupancy(room.ID))
	assert.Nil(t, connA.snapshot().Room)
	assert.Nil(t, connB.snapshot().Room)

	notes := notesOfType[*chatv1.RoomDeleted](t, connB)
	require.Len(t, notes, 1)
	assert.Equal(t, room.ID, notes[0].RoomId)
	assert.Empty(t, notesOfType[*chatv1.RoomDeleted](t, connA))
}
