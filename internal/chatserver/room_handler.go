package chatserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/chat/text"
	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
)

func (d *Dispatcher) createRoom(ctx context.Context, conn directory.Conn, req *chatv1.CreateRoomRequest) *chatv1.ServerMessage {
	if err := text.Validate(req.Name, d.limits.MaxRoomNameLength); err != nil {
		return fail(fmt.Sprintf("invalid room name: %v", err))
	}
	snap := readSnapshot(conn)
	if !snap.Authenticated() {
		return unauthorized("sign in first")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	room, err := uow.InsertRoom(ctx, req.Name, snap.Identity.ID)
	if errors.Is(err, ErrAlreadyExists) {
		return fail("room name already taken")
	}
	if err != nil {
		return d.storageFailure("insert room", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	d.logger.Info("room created",
		zap.Int64("room_id", room.ID),
		zap.String("room", room.Name),
		zap.Int64("owner_id", room.OwnerID),
	)
	return ok("room created", &chatv1.RoomList{Rooms: []*chatv1.RoomInfo{{
		Id:      room.ID,
		Name:    room.Name,
		OwnerId: room.OwnerID,
	}}})
}

// joinRoom enters a room, resolving the requester's effective role
// there, and announces the arrival to the other members.
func (d *Dispatcher) joinRoom(ctx context.Context, conn directory.Conn, f *facade, req *chatv1.JoinRoomRequest) *chatv1.ServerMessage {
	view, st := lockSession(conn)
	defer view.Release()
	if st.Phase != session.Authenticated {
		return unauthorized("sign in first")
	}
	if st.Room != nil {
		return fail("already in a room")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	room, err := uow.FindRoomByID(ctx, req.RoomId)
	if errors.Is(err, ErrNotFound) {
		return notFound("room not found")
	}
	if err != nil {
		return d.storageFailure("find room", err)
	}
	acct, err := uow.FindAccountByID(ctx, st.Identity.ID)
	if err != nil {
		return d.storageFailure("find account", err)
	}
	role, err := roleInRoom(ctx, uow, room, acct)
	if err != nil {
		return d.storageFailure("resolve role", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	if err := st.EnterRoom(room.ID, role); err != nil {
		return fail(err.Error())
	}
	snap := st.Snapshot()
	view.Release()

	f.joinRoom(room.ID)
	f.announceToOthers(room.ID, &chatv1.UserEvent{
		RoomId:   room.ID,
		UserId:   snap.Identity.ID,
		UserName: snap.Identity.Name,
		Joined:   true,
	})
	return ok("", &chatv1.RoomJoined{RoomId: room.ID, Role: int32(role)})
}

func (d *Dispatcher) leaveRoom(_ context.Context, conn directory.Conn, f *facade) *chatv1.ServerMessage {
	view, st := lockSession(conn)
	defer view.Release()
	if st.Phase != session.Authenticated {
		return unauthorized("sign in first")
	}
	if st.Room == nil {
		return fail("not in a room")
	}

	snap := st.Snapshot()
	st.ExitRoom()
	view.Release()

	f.leaveRoom(snap)
	f.announce(snap.Room.ID, &chatv1.UserEvent{
		RoomId:   snap.Room.ID,
		UserId:   snap.Identity.ID,
		UserName: snap.Identity.Name,
	})
	return ok("", nil)
}

func (d *Dispatcher) listRooms(ctx context.Context, conn directory.Conn) *chatv1.ServerMessage {
	snap := readSnapshot(conn)
	if !snap.Authenticated() {
		return unauthorized("sign in first")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	rooms, err := uow.ListRooms(ctx)
	if err != nil {
		return d.storageFailure("list rooms", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	list := &chatv1.RoomList{Rooms: make([]*chatv1.RoomInfo, 0, len(rooms))}
	for _, room := range rooms {
		list.Rooms = append(list.Rooms, &chatv1.RoomInfo{
			Id:      room.ID,
			Name:    room.Name,
			OwnerId: room.OwnerID,
		})
	}
	return ok("", list)
}

func (d *Dispatcher) listUsers(_ context.Context, conn directory.Conn, f *facade) *chatv1.ServerMessage {
	snap := readSnapshot(conn)
	if !snap.Authenticated() {
		return unauthorized("sign in first")
	}
	if snap.Room == nil {
		return fail("not in a room")
	}

	members := f.usersInRoom(snap.Room.ID, snap)
	list := &chatv1.UserList{Users: make([]*chatv1.UserInfo, 0, len(members))}
	for _, m := range members {
		list.Users = append(list.Users, &chatv1.UserInfo{
			Id:   m.UserID,
			Name: m.Name,
			Role: int32(m.Role),
		})
	}
	return ok("", list)
}

func (d *Dispatcher) listMessages(ctx context.Context, conn directory.Conn, req *chatv1.ListMessagesRequest) *chatv1.ServerMessage {
	snap := readSnapshot(conn)
	if !snap.Authenticated() {
		return unauthorized("sign in first")
	}
	if snap.Room == nil {
		return fail("not in a room")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	msgs, err := uow.ListMessages(ctx, snap.Room.ID, d.historyLimit(req.Limit))
	if err != nil {
		return d.storageFailure("list messages", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	list := &chatv1.MessageList{Messages: make([]*chatv1.MessageInfo, 0, len(msgs))}
	for _, msg := range msgs {
		list.Messages = append(list.Messages, &chatv1.MessageInfo{
			Id:         msg.ID,
			RoomId:     msg.RoomID,
			AuthorId:   msg.AuthorID,
			AuthorName: msg.AuthorName,
			Text:       msg.Body,
			SentAtUnix: msg.SentAt.Unix(),
		})
	}
	return ok("", list)
}

// renameRoom renames the requester's current room. Requires the owner
// role or better there.
func (d *Dispatcher) renameRoom(ctx context.Context, conn directory.Conn, f *facade, req *chatv1.RenameRoomRequest) *chatv1.ServerMessage {
	if err := text.Validate(req.Name, d.limits.MaxRoomNameLength); err != nil {
		return fail(fmt.Sprintf("invalid room name: %v", err))
	}
	snap := readSnapshot(conn)
	if !snap.Authenticated() {
		return unauthorized("sign in first")
	}
	if snap.Room == nil {
		return fail("not in a room")
	}
	if !snap.Room.Role.AtLeast(session.RoleOwner) {
		return fail("owner role required")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	err = uow.RenameRoom(ctx, snap.Room.ID, req.Name)
	if errors.Is(err, ErrNotFound) {
		return notFound("room not found")
	}
	if errors.Is(err, ErrAlreadyExists) {
		return fail("room name already taken")
	}
	if err != nil {
		return d.storageFailure("rename room", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	f.announceToOthers(snap.Room.ID, &chatv1.RoomRenamed{RoomId: snap.Room.ID, Name: req.Name})
	return ok("room renamed", nil)
}

// deleteRoom deletes the requester's current room together with its
// messages and role rows, then atomically detaches every member.
// Requires the owner role or better.
func (d *Dispatcher) deleteRoom(ctx context.Context, conn directory.Conn, f *facade) *chatv1.ServerMessage {
	snap := readSnapshot(conn)
	if !snap.Authenticated() {
		return unauthorized("sign in first")
	}
	if snap.Room == nil {
		return fail("not in a room")
	}
	if !snap.Room.Role.AtLeast(session.RoleOwner) {
		return fail("owner role required")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	err = uow.DeleteRoom(ctx, snap.Room.ID)
	if errors.Is(err, ErrNotFound) {
		return notFound("room not found")
	}
	if err != nil {
		return d.storageFailure("delete room", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	f.detachRoom(snap.Room.ID)
	d.logger.Info("room deleted",
		zap.Int64("room_id", snap.Room.ID),
		zap.Int64("user_id", snap.Identity.ID),
	)
	return ok("room deleted", nil)
}
