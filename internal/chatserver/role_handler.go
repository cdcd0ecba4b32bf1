package chatserver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
)

// assignRole changes another user's role in the requester's current
// room. The actor must hold at least the role being granted and must
// strictly outrank the target's current role. Granting the owner role
// transfers ownership: the new owner is recorded, the previous owner is
// demoted to moderator, and any stale explicit role row for the new
// owner is removed, all in one unit of work.
func (d *Dispatcher) assignRole(ctx context.Context, conn directory.Conn, f *facade, req *chatv1.AssignRoleRequest) *chatv1.ServerMessage {
	requested := session.Role(req.Role)
	if !requested.Valid() || requested == session.RoleAdmin {
		return fail("role cannot be assigned")
	}

	snap := readSnapshot(conn)
	if !snap.Authenticated() {
		return unauthorized("sign in first")
	}
	if snap.Room == nil {
		return fail("not in a room")
	}
	if snap.Identity.ID == req.TargetUserId {
		return fail("cannot change own role")
	}
	actor := snap.Room.Role
	if !actor.AtLeast(requested) {
		return unauthorized("cannot grant a role above your own")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	room, err := uow.FindRoomByID(ctx, snap.Room.ID)
	if errors.Is(err, ErrNotFound) {
		return notFound("room not found")
	}
	if err != nil {
		return d.storageFailure("find room", err)
	}
	target, err := uow.FindAccountByID(ctx, req.TargetUserId)
	if errors.Is(err, ErrNotFound) {
		return notFound("user not found")
	}
	if err != nil {
		return d.storageFailure("find account", err)
	}
	targetRole, err := roleInRoom(ctx, uow, room, target)
	if err != nil {
		return d.storageFailure("resolve role", err)
	}
	if !actor.Outranks(targetRole) {
		return unauthorized("target holds an equal or higher role")
	}

	transfer := requested == session.RoleOwner
	if transfer && room.OwnerID == target.ID {
		return fail("already the owner")
	}

	var prevOwner Account
	switch {
	case transfer:
		prevOwner, err = uow.FindAccountByID(ctx, room.OwnerID)
		if err != nil {
			return d.storageFailure("find account", err)
		}
		if err := uow.SetRoomOwner(ctx, room.ID, target.ID); err != nil {
			return d.storageFailure("set owner", err)
		}
		if err := uow.UpsertRoomRole(ctx, room.ID, room.OwnerID, session.RoleModerator); err != nil {
			return d.storageFailure("demote owner", err)
		}
		if err := uow.DeleteRoomRole(ctx, room.ID, target.ID); err != nil {
			return d.storageFailure("clear stale role", err)
		}
	case targetRole == session.RoleOwner:
		return fail("transfer ownership instead")
	case requested == session.RoleRegular:
		if err := uow.DeleteRoomRole(ctx, room.ID, target.ID); err != nil {
			return d.storageFailure("clear role", err)
		}
	default:
		if err := uow.UpsertRoomRole(ctx, room.ID, target.ID, requested); err != nil {
			return d.storageFailure("assign role", err)
		}
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	// Live sessions are reconciled only after the commit; a failed unit
	// of work leaves every session role untouched.
	f.setRoomRole(target.ID, room.ID, requested)
	f.announce(room.ID, &chatv1.RoleChanged{
		RoomId:   room.ID,
		UserId:   target.ID,
		UserName: target.Username,
		Role:     int32(requested),
	})
	if transfer {
		f.setRoomRole(prevOwner.ID, room.ID, session.RoleModerator)
		f.announce(room.ID, &chatv1.RoleChanged{
			RoomId:   room.ID,
			UserId:   prevOwner.ID,
			UserName: prevOwner.Username,
			Role:     int32(session.RoleModerator),
		})
	}

	d.logger.Info("role assigned",
		zap.Int64("room_id", room.ID),
		zap.Int64("actor_id", snap.Identity.ID),
		zap.Int64("target_id", target.ID),
		zap.String("role", requested.String()),
	)
	return ok("role assigned", nil)
}
