// Package chatserver implements the chat protocol engine: request
// dispatch, session and room handlers, and the per-connection request
// processor. Persistence is consumed through the Store/UnitOfWork
// interfaces so the engine never sees a concrete database.
package chatserver

import (
	"context"
	"errors"
	"time"

	"github.com/cory-johannsen/chatserver/internal/chat/session"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when an insert or rename violates a
// uniqueness constraint. The raw backend message never crosses this
// boundary.
var ErrAlreadyExists = errors.New("already exists")

// ErrTxDone is returned when a unit of work is used after its commit
// or rollback.
var ErrTxDone = errors.New("unit of work is finished")

// Account is a stored user account. Legacy accounts carry an empty
// Salt and a bcrypt PasswordHash; they are migrated on first login.
type Account struct {
	ID           int64
	Username     string
	Salt         string
	PasswordHash string
	Admin        bool
	CreatedAt    time.Time
}

// Room is a stored chat room. The owner's role is implied by OwnerID;
// only explicit non-regular roles get a RoomRole row.
type Room struct {
	ID        int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

// Message is a stored chat message joined with its author's name.
type Message struct {
	ID         int64
	RoomID     int64
	AuthorID   int64
	AuthorName string
	Body       string
	SentAt     time.Time
}

// Store opens transactional persistence scopes.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork is a transactional persistence scope. All operations see
// each other's effects; nothing is visible outside until Commit.
// Exactly one of Commit or Rollback ends the unit; Rollback after
// Commit is a no-op so it can be deferred unconditionally.
type UnitOfWork interface {
	FindAccountByUsername(ctx context.Context, username string) (Account, error)
	FindAccountByID(ctx context.Context, id int64) (Account, error)
	InsertAccount(ctx context.Context, username, salt, hash string) (Account, error)
	UpdateAccountCredentials(ctx context.Context, id int64, salt, hash string) error

	FindRoomByID(ctx context.Context, id int64) (Room, error)
	ListRooms(ctx context.Context) ([]Room, error)
	InsertRoom(ctx context.Context, name string, ownerID int64) (Room, error)
	RenameRoom(ctx context.Context, id int64, name string) error
	DeleteRoom(ctx context.Context, id int64) error

	InsertMessage(ctx context.Context, roomID, authorID int64, body string) (Message, error)
	ListMessages(ctx context.Context, roomID int64, limit int) ([]Message, error)

	FindRoomRole(ctx context.Context, roomID, accountID int64) (session.Role, error)
	UpsertRoomRole(ctx context.Context, roomID, accountID int64, role session.Role) error
	DeleteRoomRole(ctx context.Context, roomID, accountID int64) error
	SetRoomOwner(ctx context.Context, roomID, ownerID int64) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// roleInRoom resolves an account's effective role in a room: global
// admin, then implied owner, then any explicit role row, else regular.
func roleInRoom(ctx context.Context, uow UnitOfWork, room Room, acct Account) (session.Role, error) {
	if acct.Admin {
		return session.RoleAdmin, nil
	}
	if room.OwnerID == acct.ID {
		return session.RoleOwner, nil
	}
	role, err := uow.FindRoomRole(ctx, room.ID, acct.ID)
	if errors.Is(err, ErrNotFound) {
		return session.RoleRegular, nil
	}
	if err != nil {
		return session.RoleRegular, err
	}
	return role, nil
}
