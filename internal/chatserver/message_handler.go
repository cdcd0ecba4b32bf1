package chatserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/cory-johannsen/chatserver/internal/chat/directory"
	"github.com/cory-johannsen/chatserver/internal/chat/text"
	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
)

// sendMessage persists a message to the requester's current room and
// broadcasts it to the other members once the commit succeeds. The
// broadcast never precedes the commit, so members only see messages
// that are durably stored.
func (d *Dispatcher) sendMessage(ctx context.Context, conn directory.Conn, f *facade, req *chatv1.SendMessageRequest) *chatv1.ServerMessage {
	if err := text.Validate(req.Text, d.limits.MaxMessageLength); err != nil {
		return fail(fmt.Sprintf("invalid message: %v", err))
	}
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

	msg, err := uow.InsertMessage(ctx, snap.Room.ID, snap.Identity.ID, req.Text)
	if errors.Is(err, ErrNotFound) {
		return notFound("room not found")
	}
	if err != nil {
		return d.storageFailure("insert message", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	note := &chatv1.ChatMessage{
		RoomId:     msg.RoomID,
		UserId:     snap.Identity.ID,
		UserName:   snap.Identity.Name,
		Text:       msg.Body,
		SentAtUnix: msg.SentAt.Unix(),
	}
	f.announceToOthers(snap.Room.ID, note)
	return ok("", note)
}
