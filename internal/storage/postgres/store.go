package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/chatserver"
)

// Store implements chatserver.Store on a pgx connection pool. Every
// unit of work is one database transaction.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
//
// Precondition: pool must be a valid, open connection pool.
func NewStore(pool *Pool) *Store {
	return &Store{db: pool.DB()}
}

// Begin opens a transaction-backed unit of work.
func (s *Store) Begin(ctx context.Context) (chatserver.UnitOfWork, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &unitOfWork{tx: tx}, nil
}

type unitOfWork struct {
	tx   pgx.Tx
	done bool
}

func (u *unitOfWork) FindAccountByUsername(ctx context.Context, username string) (chatserver.Account, error) {
	return u.scanAccount(u.tx.QueryRow(ctx,
		`SELECT id, username, salt, password_hash, is_admin, created_at
		 FROM accounts WHERE username = $1`,
		username,
	))
}

func (u *unitOfWork) FindAccountByID(ctx context.Context, id int64) (chatserver.Account, error) {
	return u.scanAccount(u.tx.QueryRow(ctx,
		`SELECT id, username, salt, password_hash, is_admin, created_at
		 FROM accounts WHERE id = $1`,
		id,
	))
}

func (u *unitOfWork) InsertAccount(ctx context.Context, username, salt, hash string) (chatserver.Account, error) {
	if u.done {
		return chatserver.Account{}, chatserver.ErrTxDone
	}
	acct, err := u.scanAccount(u.tx.QueryRow(ctx,
		`INSERT INTO accounts (username, salt, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, username, salt, password_hash, is_admin, created_at`,
		username, salt, hash,
	))
	if isDuplicateKeyError(err) {
		return chatserver.Account{}, chatserver.ErrAlreadyExists
	}
	return acct, err
}

func (u *unitOfWork) UpdateAccountCredentials(ctx context.Context, id int64, salt, hash string) error {
	if u.done {
		return chatserver.ErrTxDone
	}
	tag, err := u.tx.Exec(ctx,
		`UPDATE accounts SET salt = $2, password_hash = $3 WHERE id = $1`,
		id, salt, hash,
	)
	if err != nil {
		return fmt.Errorf("updating credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chatserver.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) FindRoomByID(ctx context.Context, id int64) (chatserver.Room, error) {
	return u.scanRoom(u.tx.QueryRow(ctx,
		`SELECT id, name, owner_id, created_at FROM rooms WHERE id = $1`,
		id,
	))
}

func (u *unitOfWork) ListRooms(ctx context.Context) ([]chatserver.Room, error) {
	if u.done {
		return nil, chatserver.ErrTxDone
	}
	rows, err := u.tx.Query(ctx,
		`SELECT id, name, owner_id, created_at FROM rooms ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var out []chatserver.Room
	for rows.Next() {
		var room chatserver.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.OwnerID, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

func (u *unitOfWork) InsertRoom(ctx context.Context, name string, ownerID int64) (chatserver.Room, error) {
	if u.done {
		return chatserver.Room{}, chatserver.ErrTxDone
	}
	room, err := u.scanRoom(u.tx.QueryRow(ctx,
		`INSERT INTO rooms (name, owner_id)
		 VALUES ($1, $2)
		 RETURNING id, name, owner_id, created_at`,
		name, ownerID,
	))
	if isDuplicateKeyError(err) {
		return chatserver.Room{}, chatserver.ErrAlreadyExists
	}
	return room, err
}

func (u *unitOfWork) RenameRoom(ctx context.Context, id int64, name string) error {
	if u.done {
		return chatserver.ErrTxDone
	}
	tag, err := u.tx.Exec(ctx,
		`UPDATE rooms SET name = $2 WHERE id = $1`,
		id, name,
	)
	if isDuplicateKeyError(err) {
		return chatserver.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("renaming room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chatserver.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) DeleteRoom(ctx context.Context, id int64) error {
	if u.done {
		return chatserver.ErrTxDone
	}
	// Messages and role rows go with the room via ON DELETE CASCADE.
	tag, err := u.tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chatserver.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) InsertMessage(ctx context.Context, roomID, authorID int64, body string) (chatserver.Message, error) {
	if u.done {
		return chatserver.Message{}, chatserver.ErrTxDone
	}
	var msg chatserver.Message
	err := u.tx.QueryRow(ctx,
		`WITH ins AS (
		   INSERT INTO messages (room_id, author_id, body)
		   VALUES ($1, $2, $3)
		   RETURNING id, room_id, author_id, body, sent_at
		 )
		 SELECT ins.id, ins.room_id, ins.author_id, a.username, ins.body, ins.sent_at
		 FROM ins JOIN accounts a ON a.id = ins.author_id`,
		roomID, authorID, body,
	).Scan(&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.AuthorName, &msg.Body, &msg.SentAt)
	if isForeignKeyError(err) {
		return chatserver.Message{}, chatserver.ErrNotFound
	}
	if err != nil {
		return chatserver.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	return msg, nil
}

func (u *unitOfWork) ListMessages(ctx context.Context, roomID int64, limit int) ([]chatserver.Message, error) {
	if u.done {
		return nil, chatserver.ErrTxDone
	}
	rows, err := u.tx.Query(ctx,
		`SELECT m.id, m.room_id, m.author_id, a.username, m.body, m.sent_at
		 FROM messages m JOIN accounts a ON a.id = m.author_id
		 WHERE m.room_id = $1
		 ORDER BY m.id DESC
		 LIMIT $2`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var out []chatserver.Message
	for rows.Next() {
		var msg chatserver.Message
		if err := rows.Scan(&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.AuthorName, &msg.Body, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The query walks newest-first for the LIMIT; callers want oldest
	// first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (u *unitOfWork) FindRoomRole(ctx context.Context, roomID, accountID int64) (session.Role, error) {
	if u.done {
		return session.RoleRegular, chatserver.ErrTxDone
	}
	var role int32
	err := u.tx.QueryRow(ctx,
		`SELECT role FROM room_roles WHERE room_id = $1 AND account_id = $2`,
		roomID, accountID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.RoleRegular, chatserver.ErrNotFound
	}
	if err != nil {
		return session.RoleRegular, fmt.Errorf("querying room role: %w", err)
	}
	return session.Role(role), nil
}

func (u *unitOfWork) UpsertRoomRole(ctx context.Context, roomID, accountID int64, role session.Role) error {
	if u.done {
		return chatserver.ErrTxDone
	}
	_, err := u.tx.Exec(ctx,
		`INSERT INTO room_roles (room_id, account_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (room_id, account_id) DO UPDATE SET role = EXCLUDED.role`,
		roomID, accountID, int32(role),
	)
	if isForeignKeyError(err) {
		return chatserver.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("upserting room role: %w", err)
	}
	return nil
}

func (u *unitOfWork) DeleteRoomRole(ctx context.Context, roomID, accountID int64) error {
	if u.done {
		return chatserver.ErrTxDone
	}
	_, err := u.tx.Exec(ctx,
		`DELETE FROM room_roles WHERE room_id = $1 AND account_id = $2`,
		roomID, accountID,
	)
	if err != nil {
		return fmt.Errorf("deleting room role: %w", err)
	}
	return nil
}

func (u *unitOfWork) SetRoomOwner(ctx context.Context, roomID, ownerID int64) error {
	if u.done {
		return chatserver.ErrTxDone
	}
	tag, err := u.tx.Exec(ctx,
		`UPDATE rooms SET owner_id = $2 WHERE id = $1`,
		roomID, ownerID,
	)
	if isForeignKeyError(err) {
		return chatserver.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating room owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chatserver.ErrNotFound
	}
	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return chatserver.ErrTxDone
	}
	u.done = true
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) scanAccount(row pgx.Row) (chatserver.Account, error) {
	if u.done {
		return chatserver.Account{}, chatserver.ErrTxDone
	}
	var acct chatserver.Account
	err := row.Scan(&acct.ID, &acct.Username, &acct.Salt, &acct.PasswordHash, &acct.Admin, &acct.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chatserver.Account{}, chatserver.ErrNotFound
	}
	if err != nil && !isDuplicateKeyError(err) {
		return chatserver.Account{}, fmt.Errorf("scanning account: %w", err)
	}
	return acct, err
}

func (u *unitOfWork) scanRoom(row pgx.Row) (chatserver.Room, error) {
	if u.done {
		return chatserver.Room{}, chatserver.ErrTxDone
	}
	var room chatserver.Room
	err := row.Scan(&room.ID, &room.Name, &room.OwnerID, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chatserver.Room{}, chatserver.ErrNotFound
	}
	if err != nil && !isDuplicateKeyError(err) {
		return chatserver.Room{}, fmt.Errorf("scanning room: %w", err)
	}
	return room, err
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}

// isForeignKeyError checks if a pgx error is a foreign key violation.
func isForeignKeyError(err error) bool {
	// SQLSTATE 23503 (foreign_key_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23503"
	}
	return false
}
