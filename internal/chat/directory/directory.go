// Package directory maintains the server-wide index of live connections
// by account and by room, and performs targeted and broadcast delivery.
// The index is guarded by a single guard.GuardedState; writes take the
// exclusive lock, reads the shared lock.
package directory

import (
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatserver/internal/chat/session"
	"github.com/cory-johannsen/chatserver/internal/guard"
)

// Conn is the directory's view of a live connection. Send is
// fire-and-forget: implementations queue the bytes and preserve
// per-connection ordering; an error means the connection is gone and
// the recipient is skipped.
type Conn interface {
	ID() string
	Send(data []byte) error
	Session() *guard.GuardedState[session.State]
}

// Member is one distinct occupant of a room.
type Member struct {
	UserID int64
	Name   string
	Role   session.Role
}

// indexes is the guarded multimap state: account id → connections and
// room id → connections.
type indexes struct {
	byUser map[int64]map[string]Conn
	byRoom map[int64]map[string]Conn
}

// Directory is the shared, server-lifetime connection index. It is
// constructed once by the composition root and injected into every
// handler invocation; it is never copied.
type Directory struct {
	state  *guard.GuardedState[indexes]
	logger *zap.Logger
}

// New creates an empty Directory.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger) *Directory {
	return &Directory{
		state: guard.NewGuardedState(indexes{
			byUser: make(map[int64]map[string]Conn),
			byRoom: make(map[int64]map[string]Conn),
		}),
		logger: logger,
	}
}

// Register adds conn under the given account id. The same account may
// hold several live connections (multi-device).
func (d *Directory) Register(userID int64, conn Conn) {
	v := d.state.Lock()
	defer v.Release()

	idx := v.Value()
	if idx.byUser[userID] == nil {
		idx.byUser[userID] = make(map[string]Conn)
	}
	idx.byUser[userID][conn.ID()] = conn
}

// Unregister removes conn from the identity index and, if the snapshot
// carries room membership, from the room index. It is idempotent: a
// second call for the same connection is a no-op.
func (d *Directory) Unregister(conn Conn, snap session.Snapshot) {
	v := d.state.Lock()
	defer v.Release()

	idx := v.Value()
	if snap.Identity != nil {
		removeConn(idx.byUser, snap.Identity.ID, conn)
	}
	if snap.Room != nil {
		removeConn(idx.byRoom, snap.Room.ID, conn)
	}
}

// JoinRoom adds conn to the room index entry for roomID.
func (d *Directory) JoinRoom(roomID int64, conn Conn) {
	v := d.state.Lock()
	defer v.Release()

	idx := v.Value()
	if idx.byRoom[roomID] == nil {
		idx.byRoom[roomID] = make(map[string]Conn)
	}
	idx.byRoom[roomID][conn.ID()] = conn
}

// LeaveRoom removes conn from the room recorded in the snapshot. A
// no-op when the snapshot has no room.
func (d *Directory) LeaveRoom(conn Conn, snap session.Snapshot) {
	if snap.Room == nil {
		return
	}
	v := d.state.Lock()
	defer v.Release()
	removeConn(v.Value().byRoom, snap.Room.ID, conn)
}

// UsersInRoom returns the distinct occupants of roomID. Each member
// connection's session is read under its own shared lock; the caller's
// connection is resolved from callerSnap instead, so the caller never
// re-enters its own session lock. Connections whose session no longer
// matches the room are skipped.
func (d *Directory) UsersInRoom(roomID int64, caller Conn, callerSnap session.Snapshot) []Member {
	conns := d.roomConns(roomID)

	seen := make(map[int64]bool, len(conns))
	members := make([]Member, 0, len(conns))
	for _, conn := range conns {
		var snap session.Snapshot
		if caller != nil && conn.ID() == caller.ID() {
			snap = callerSnap
		} else {
			view := conn.Session().RLock()
			snap = view.Value().Snapshot()
			view.Release()
		}
		if snap.Identity == nil || snap.Room == nil || snap.Room.ID != roomID {
			continue
		}
		if seen[snap.Identity.ID] {
			continue
		}
		seen[snap.Identity.ID] = true
		members = append(members, Member{
			UserID: snap.Identity.ID,
			Name:   snap.Identity.Name,
			Role:   snap.Room.Role,
		})
	}

	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}

// SendToRoom pushes data to every connection currently in roomID.
// Failed sends (closed connections mid-iteration) are logged and
// skipped. Returns the number of successful deliveries.
func (d *Directory) SendToRoom(roomID int64, data []byte) int {
	return d.push(d.roomConns(roomID), data, nil)
}

// SendToRoomExcept behaves like SendToRoom but skips except, typically
// the connection whose request already receives a typed response.
func (d *Directory) SendToRoomExcept(roomID int64, data []byte, except Conn) int {
	return d.push(d.roomConns(roomID), data, except)
}

// SendToUser pushes data to every live connection of the given account.
func (d *Directory) SendToUser(userID int64, data []byte) int {
	v := d.state.RLock()
	conns := collect(v.Value().byUser[userID])
	v.Release()
	return d.push(conns, data, nil)
}

// SendToAll pushes data to every registered connection, once per
// connection even when an account appears under several entries.
func (d *Directory) SendToAll(data []byte) int {
	v := d.state.RLock()
	uniq := make(map[string]Conn)
	for _, conns := range v.Value().byUser {
		for id, conn := range conns {
			uniq[id] = conn
		}
	}
	v.Release()
	return d.push(collect(uniq), data, nil)
}

// OnRoomDeleted atomically detaches every member connection from
// roomID — the room entry is removed and each member's session room
// field is cleared under the directory's exclusive lock, so a
// concurrent JoinRoom observes either the intact room or no room at
// all. Returns the detached connections so the caller can notify them.
//
// Member session locks are acquired while the directory lock is held;
// this is safe because no handler waits for the directory while holding
// a session lock (the lock-ordering rule: session first, release, then
// directory).
func (d *Directory) OnRoomDeleted(roomID int64) []Conn {
	v := d.state.Lock()
	defer v.Release()

	idx := v.Value()
	set := idx.byRoom[roomID]
	delete(idx.byRoom, roomID)

	detached := collect(set)
	for _, conn := range detached {
		sv := conn.Session().Lock()
		sv.Value().ExitRoom()
		sv.Release()
	}
	return detached
}

// SetRoomRole updates the session room role on every live connection of
// userID that currently occupies roomID. Returns the number of sessions
// updated. Connections that left the room since the caller decided to
// update them are skipped.
func (d *Directory) SetRoomRole(userID, roomID int64, role session.Role) int {
	v := d.state.RLock()
	conns := collect(v.Value().byUser[userID])
	v.Release()

	updated := 0
	for _, conn := range conns {
		sv := conn.Session().Lock()
		st := sv.Value()
		if st.Room != nil && st.Room.ID == roomID {
			st.Room.Role = role
			updated++
		}
		sv.Release()
	}
	return updated
}

// RoomOccupancy returns the number of connections in the room index
// entry for roomID.
func (d *Directory) RoomOccupancy(roomID int64) int {
	v := d.state.RLock()
	defer v.Release()
	return len(v.Value().byRoom[roomID])
}

// ConnCountForUser returns the number of live connections registered
// for the given account.
func (d *Directory) ConnCountForUser(userID int64) int {
	v := d.state.RLock()
	defer v.Release()
	return len(v.Value().byUser[userID])
}

// roomConns snapshots the member connections of roomID under the shared
// lock. Delivery happens after release so a slow recipient never holds
// up the index.
func (d *Directory) roomConns(roomID int64) []Conn {
	v := d.state.RLock()
	defer v.Release()
	return collect(v.Value().byRoom[roomID])
}

func (d *Directory) push(conns []Conn, data []byte, except Conn) int {
	delivered := 0
	for _, conn := range conns {
		if except != nil && conn.ID() == except.ID() {
			continue
		}
		if err := conn.Send(data); err != nil {
			d.logger.Debug("dropping send to closed connection",
				zap.String("conn_id", conn.ID()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

func removeConn(m map[int64]map[string]Conn, key int64, conn Conn) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, conn.ID())
	if len(set) == 0 {
		delete(m, key)
	}
}

func collect(set map[string]Conn) []Conn {
	out := make([]Conn, 0, len(set))
	for _, conn := range set {
		out = append(out, conn)
	}
	return out
}
