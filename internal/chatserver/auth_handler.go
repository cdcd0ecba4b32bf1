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

// initialAuth looks up the account and answers with its salt, moving the
// session to the authenticating phase. Unknown accounts are reported as
// not found so the client can fall back to registration.
func (d *Dispatcher) initialAuth(ctx context.Context, conn directory.Conn, req *chatv1.InitialAuthRequest) *chatv1.ServerMessage {
	if err := text.Validate(req.Username, d.limits.MaxUsernameLength); err != nil {
		return fail(fmt.Sprintf("invalid username: %v", err))
	}

	view, st := lockSession(conn)
	defer view.Release()
	if st.Phase != session.Unauthenticated {
		return fail("authentication already in progress")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	acct, err := uow.FindAccountByUsername(ctx, req.Username)
	if errors.Is(err, ErrNotFound) {
		return notFound("unknown user")
	}
	if err != nil {
		return d.storageFailure("find account", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	if err := st.BeginAuth(session.Identity{ID: acct.ID, Name: acct.Username}); err != nil {
		return fail(err.Error())
	}
	return ok("", &chatv1.SaltInfo{Salt: acct.Salt})
}

// auth verifies the presented credential hash for the account selected
// by the preceding initialAuth. On success the connection is registered
// in the directory; on failure the session resets to unauthenticated.
func (d *Dispatcher) auth(ctx context.Context, conn directory.Conn, f *facade, req *chatv1.AuthRequest) *chatv1.ServerMessage {
	view, st := lockSession(conn)
	defer view.Release()
	if st.Phase != session.Authenticating || st.Identity == nil {
		return fail("no authentication in progress")
	}
	if err := text.Validate(req.Hash, d.limits.MaxHashLength); err != nil {
		st.Reset()
		return unauthorized("invalid credentials")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	acct, err := uow.FindAccountByID(ctx, st.Identity.ID)
	if errors.Is(err, ErrNotFound) {
		st.Reset()
		return notFound("unknown user")
	}
	if err != nil {
		return d.storageFailure("find account", err)
	}

	if !d.verifier.Verify(acct, req.Hash) {
		st.Reset()
		return unauthorized("invalid credentials")
	}

	if acct.Salt == "" {
		// First successful login of a legacy account: replace the bcrypt
		// credential with the salted scheme in the same unit of work.
		salt, hash, merr := d.verifier.Migrate(req.Hash)
		if merr == nil {
			merr = uow.UpdateAccountCredentials(ctx, acct.ID, salt, hash)
		}
		if merr != nil {
			d.logger.Warn("credential migration failed",
				zap.Int64("user_id", acct.ID),
				zap.Error(merr),
			)
		}
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	if err := st.CompleteAuth(); err != nil {
		return fail(err.Error())
	}
	snap := st.Snapshot()
	view.Release()

	f.register(snap.Identity.ID)
	d.logger.Info("user authenticated",
		zap.Int64("user_id", snap.Identity.ID),
		zap.String("user", snap.Identity.Name),
		zap.String("conn_id", conn.ID()),
	)
	return ok("welcome", nil)
}

// initialRegister checks name availability and moves the session to the
// registering phase. The name is not reserved; the insert in register
// is what enforces uniqueness.
func (d *Dispatcher) initialRegister(ctx context.Context, conn directory.Conn, req *chatv1.InitialRegisterRequest) *chatv1.ServerMessage {
	if err := text.Validate(req.Username, d.limits.MaxUsernameLength); err != nil {
		return fail(fmt.Sprintf("invalid username: %v", err))
	}

	view, st := lockSession(conn)
	defer view.Release()
	if st.Phase != session.Unauthenticated {
		return fail("registration already in progress")
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	_, err = uow.FindAccountByUsername(ctx, req.Username)
	if err == nil {
		return fail("username already taken")
	}
	if !errors.Is(err, ErrNotFound) {
		return d.storageFailure("find account", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	if err := st.BeginRegister(req.Username); err != nil {
		return fail(err.Error())
	}
	return ok("send credentials", nil)
}

// register inserts the account for the name chosen in initialRegister.
// On success the session returns to unauthenticated and the client signs
// in through the normal flow.
func (d *Dispatcher) register(ctx context.Context, conn directory.Conn, req *chatv1.RegisterRequest) *chatv1.ServerMessage {
	view, st := lockSession(conn)
	defer view.Release()
	if st.Phase != session.Registering || st.PendingName == "" {
		return fail("no registration in progress")
	}
	if err := text.Validate(req.Salt, d.limits.MaxHashLength); err != nil {
		return fail(fmt.Sprintf("invalid salt: %v", err))
	}
	if err := text.Validate(req.Hash, d.limits.MaxHashLength); err != nil {
		return fail(fmt.Sprintf("invalid hash: %v", err))
	}

	uow, err := d.store.Begin(ctx)
	if err != nil {
		return d.storageFailure("begin", err)
	}
	defer uow.Rollback(ctx)

	acct, err := uow.InsertAccount(ctx, st.PendingName, req.Salt, req.Hash)
	if errors.Is(err, ErrAlreadyExists) {
		st.Reset()
		return fail("username already taken")
	}
	if err != nil {
		return d.storageFailure("insert account", err)
	}
	if err := uow.Commit(ctx); err != nil {
		return d.storageFailure("commit", err)
	}

	st.Reset()
	d.logger.Info("account registered",
		zap.Int64("user_id", acct.ID),
		zap.String("user", acct.Username),
	)
	return ok("registered, sign in to continue", nil)
}

// logout clears the session and withdraws the connection from the
// directory. The connection itself stays open.
func (d *Dispatcher) logout(_ context.Context, conn directory.Conn, f *facade) *chatv1.ServerMessage {
	view, st := lockSession(conn)
	defer view.Release()
	if st.Phase != session.Authenticated {
		return unauthorized("not signed in")
	}

	snap := st.Snapshot()
	st.Reset()
	view.Release()

	f.unregister(snap)
	if snap.Room != nil {
		f.announce(snap.Room.ID, &chatv1.UserEvent{
			RoomId:   snap.Room.ID,
			UserId:   snap.Identity.ID,
			UserName: snap.Identity.Name,
		})
	}
	return ok("goodbye", nil)
}
