package chatserver

import (
	"context"
	"sync"
	"time"

	"github.com/cory-johannsen/chatserver/internal/chat/session"
)

// memStore is an in-memory Store for handler tests. Every unit of work
// operates on a deep copy of the data and swaps it in on commit, so a
// failed or abandoned unit leaves the store untouched. Failures are
// injectable per operation name.
type memStore struct {
	mu     sync.Mutex
	data   memData
	failOn map[string]error
}

type roleKey struct {
	roomID    int64
	accountID int64
}

type memData struct {
	nextID   int64
	accounts map[int64]Account
	rooms    map[int64]Room
	messages []Message
	roles    map[roleKey]session.Role
}

func newMemStore() *memStore {
	return &memStore{
		data: memData{
			nextID:   1,
			accounts: make(map[int64]Account),
			rooms:    make(map[int64]Room),
			roles:    make(map[roleKey]session.Role),
		},
		failOn: make(map[string]error),
	}
}

func (s *memStore) Begin(ctx context.Context) (UnitOfWork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn["begin"]; err != nil {
		return nil, err
	}
	return &memUnit{store: s, data: s.data.clone()}, nil
}

func (s *memStore) injectFailure(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[op] = err
}

func (s *memStore) seedAccount(username, salt, hash string, admin bool) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := Account{
		ID:           s.data.nextID,
		Username:     username,
		Salt:         salt,
		PasswordHash: hash,
		Admin:        admin,
		CreatedAt:    time.Now(),
	}
	s.data.nextID++
	s.data.accounts[acct.ID] = acct
	return acct
}

func (s *memStore) seedRoom(name string, ownerID int64) Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := Room{ID: s.data.nextID, Name: name, OwnerID: ownerID, CreatedAt: time.Now()}
	s.data.nextID++
	s.data.rooms[room.ID] = room
	return room
}

func (s *memStore) room(id int64) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.data.rooms[id]
	return room, ok
}

func (s *memStore) account(id int64) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.data.accounts[id]
	return acct, ok
}

func (s *memStore) role(roomID, accountID int64) (session.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.data.roles[roleKey{roomID, accountID}]
	return role, ok
}

func (s *memStore) messageCount(roomID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msg := range s.data.messages {
		if msg.RoomID == roomID {
			n++
		}
	}
	return n
}

func (d memData) clone() memData {
	out := memData{
		nextID:   d.nextID,
		accounts: make(map[int64]Account, len(d.accounts)),
		rooms:    make(map[int64]Room, len(d.rooms)),
		messages: append([]Message(nil), d.messages...),
		roles:    make(map[roleKey]session.Role, len(d.roles)),
	}
	for k, v := range d.accounts {
		out.accounts[k] = v
	}
	for k, v := range d.rooms {
		out.rooms[k] = v
	}
	for k, v := range d.roles {
		out.roles[k] = v
	}
	return out
}

type memUnit struct {
	store *memStore
	data  memData
	done  bool
}

func (u *memUnit) check(op string) error {
	if u.done {
		return ErrTxDone
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if err := u.store.failOn[op]; err != nil {
		return err
	}
	return nil
}

func (u *memUnit) FindAccountByUsername(_ context.Context, username string) (Account, error) {
	if err := u.check("find account"); err != nil {
		return Account{}, err
	}
	for _, acct := range u.data.accounts {
		if acct.Username == username {
			return acct, nil
		}
	}
	return Account{}, ErrNotFound
}

func (u *memUnit) FindAccountByID(_ context.Context, id int64) (Account, error) {
	if err := u.check("find account"); err != nil {
		return Account{}, err
	}
	acct, ok := u.data.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (u *memUnit) InsertAccount(_ context.Context, username, salt, hash string) (Account, error) {
	if err := u.check("insert account"); err != nil {
		return Account{}, err
	}
	for _, acct := range u.data.accounts {
		if acct.Username == username {
			return Account{}, ErrAlreadyExists
		}
	}
	acct := Account{
		ID:           u.data.nextID,
		Username:     username,
		Salt:         salt,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	u.data.nextID++
	u.data.accounts[acct.ID] = acct
	return acct, nil
}

func (u *memUnit) UpdateAccountCredentials(_ context.Context, id int64, salt, hash string) error {
	if err := u.check("update credentials"); err != nil {
		return err
	}
	acct, ok := u.data.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.Salt = salt
	acct.PasswordHash = hash
	u.data.accounts[id] = acct
	return nil
}

func (u *memUnit) FindRoomByID(_ context.Context, id int64) (Room, error) {
	if err := u.check("find room"); err != nil {
		return Room{}, err
	}
	room, ok := u.data.rooms[id]
	if !ok {
		return Room{}, ErrNotFound
	}
	return room, nil
}

func (u *memUnit) ListRooms(_ context.Context) ([]Room, error) {
	if err := u.check("list rooms"); err != nil {
		return nil, err
	}
	out := make([]Room, 0, len(u.data.rooms))
	for _, room := range u.data.rooms {
		out = append(out, room)
	}
	return out, nil
}

func (u *memUnit) InsertRoom(_ context.Context, name string, ownerID int64) (Room, error) {
	if err := u.check("insert room"); err != nil {
		return Room{}, err
	}
	for _, room := range u.data.rooms {
		if room.Name == name {
			return Room{}, ErrAlreadyExists
		}
	}
	room := Room{ID: u.data.nextID, Name: name, OwnerID: ownerID, CreatedAt: time.Now()}
	u.data.nextID++
	u.data.rooms[room.ID] = room
	return room, nil
}

func (u *memUnit) RenameRoom(_ context.Context, id int64, name string) error {
	if err := u.check("rename room"); err != nil {
		return err
	}
	room, ok := u.data.rooms[id]
	if !ok {
		return ErrNotFound
	}
	for _, other := range u.data.rooms {
		if other.ID != id && other.Name == name {
			return ErrAlreadyExists
		}
	}
	room.Name = name
	u.data.rooms[id] = room
	return nil
}

func (u *memUnit) DeleteRoom(_ context.Context, id int64) error {
	if err := u.check("delete room"); err != nil {
		return err
	}
	if _, ok := u.data.rooms[id]; !ok {
		return ErrNotFound
	}
	delete(u.data.rooms, id)
	kept := u.data.messages[:0]
	for _, msg := range u.data.messages {
		if msg.RoomID != id {
			kept = append(kept, msg)
		}
	}
	u.data.messages = kept
	for key := range u.data.roles {
		if key.roomID == id {
			delete(u.data.roles, key)
		}
	}
	return nil
}

func (u *memUnit) InsertMessage(_ context.Context, roomID, authorID int64, body string) (Message, error) {
	if err := u.check("insert message"); err != nil {
		return Message{}, err
	}
	if _, ok := u.data.rooms[roomID]; !ok {
		return Message{}, ErrNotFound
	}
	author := u.data.accounts[authorID]
	msg := Message{
		ID:         u.data.nextID,
		RoomID:     roomID,
		AuthorID:   authorID,
		AuthorName: author.Username,
		Body:       body,
		SentAt:     time.Now(),
	}
	u.data.nextID++
	u.data.messages = append(u.data.messages, msg)
	return msg, nil
}

func (u *memUnit) ListMessages(_ context.Context, roomID int64, limit int) ([]Message, error) {
	if err := u.check("list messages"); err != nil {
		return nil, err
	}
	var out []Message
	for _, msg := range u.data.messages {
		if msg.RoomID == roomID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (u *memUnit) FindRoomRole(_ context.Context, roomID, accountID int64) (session.Role, error) {
	if err := u.check("find role"); err != nil {
		return session.RoleRegular, err
	}
	role, ok := u.data.roles[roleKey{roomID, accountID}]
	if !ok {
		return session.RoleRegular, ErrNotFound
	}
	return role, nil
}

func (u *memUnit) UpsertRoomRole(_ context.Context, roomID, accountID int64, role session.Role) error {
	if err := u.check("upsert role"); err != nil {
		return err
	}
	u.data.roles[roleKey{roomID, accountID}] = role
	return nil
}

func (u *memUnit) DeleteRoomRole(_ context.Context, roomID, accountID int64) error {
	if err := u.check("delete role"); err != nil {
		return err
	}
	delete(u.data.roles, roleKey{roomID, accountID})
	return nil
}

func (u *memUnit) SetRoomOwner(_ context.Context, roomID, ownerID int64) error {
	if err := u.check("set owner"); err != nil {
		return err
	}
	room, ok := u.data.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.OwnerID = ownerID
	u.data.rooms[roomID] = room
	return nil
}

func (u *memUnit) Commit(_ context.Context) error {
	if u.done {
		return ErrTxDone
	}
	u.done = true
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if err := u.store.failOn["commit"]; err != nil {
		return err
	}
	u.store.data = u.data
	return nil
}

func (u *memUnit) Rollback(_ context.Context) error {
	u.done = true
	return nil
}
