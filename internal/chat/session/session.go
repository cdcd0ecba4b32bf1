// Package session defines the per-connection chat session state machine:
// authentication phase, identity, and current room membership. A State
// is owned by exactly one connection and is always accessed through a
// guard.GuardedState.
package session

import "fmt"

// Phase is the authentication phase of a connection.
type Phase int

const (
	// Unauthenticated is the initial phase of every connection.
	Unauthenticated Phase = iota
	// Registering means an InitialRegister was accepted and the server
	// awaits the Register payload for the reserved name.
	Registering
	// Authenticating means an InitialAuth found the account and the
	// server awaits the credential hash.
	Authenticating
	// Authenticated means credentials were verified.
	Authenticated
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "unauthenticated"
	case Registering:
		return "registering"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Role is a chat privilege level. The order is total:
// Regular < Moderator < Owner < Admin. Admin is global and independent
// of any room.
type Role int32

const (
	RoleRegular Role = iota
	RoleModerator
	RoleOwner
	RoleAdmin
)

// Outranks reports whether r is strictly greater than other.
func (r Role) Outranks(other Role) bool { return r > other }

// AtLeast reports whether r is greater than or equal to other.
func (r Role) AtLeast(other Role) bool { return r >= other }

// Valid reports whether r is a recognised role.
func (r Role) Valid() bool { return r >= RoleRegular && r <= RoleAdmin }

// String returns the lowercase role name.
func (r Role) String() string {
	switch r {
	case RoleRegular:
		return "regular"
	case RoleModerator:
		return "moderator"
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	}
	return fmt.Sprintf("role(%d)", int32(r))
}

// Identity is the authenticated (or authenticating) account bound to a
// connection.
type Identity struct {
	ID   int64
	Name string
}

// RoomMembership is the room a session currently occupies and the role
// it holds there.
type RoomMembership struct {
	ID   int64
	Role Role
}

// State is the mutable per-connection session state.
//
// Invariants: Identity is set iff Phase is Authenticating or
// Authenticated; Room is set only when Phase is Authenticated.
// PendingName is meaningful only in the Registering phase.
type State struct {
	Phase       Phase
	Identity    *Identity
	Room        *RoomMembership
	PendingName string
}

// BeginAuth moves the state to Authenticating for the given identity.
//
// Precondition: the state must be Unauthenticated.
func (s *State) BeginAuth(id Identity) error {
	if s.Phase != Unauthenticated {
		return fmt.Errorf("begin auth in phase %s", s.Phase)
	}
	s.Phase = Authenticating
	s.Identity = &id
	return nil
}

// BeginRegister moves the state to Registering, remembering the
// requested account name.
//
// Precondition: the state must be Unauthenticated.
func (s *State) BeginRegister(name string) error {
	if s.Phase != Unauthenticated {
		return fmt.Errorf("begin register in phase %s", s.Phase)
	}
	s.Phase = Registering
	s.PendingName = name
	return nil
}

// CompleteAuth moves an Authenticating state to Authenticated.
func (s *State) CompleteAuth() error {
	if s.Phase != Authenticating || s.Identity == nil {
		return fmt.Errorf("complete auth in phase %s", s.Phase)
	}
	s.Phase = Authenticated
	return nil
}

// Reset returns the state to Unauthenticated, clearing identity, room,
// and any pending registration. Used on auth failure, completed
// registration, and logout.
func (s *State) Reset() {
	s.Phase = Unauthenticated
	s.Identity = nil
	s.Room = nil
	s.PendingName = ""
}

// EnterRoom records room membership with the given role.
//
// Precondition: the state must be Authenticated and not already in a room.
func (s *State) EnterRoom(roomID int64, role Role) error {
	if s.Phase != Authenticated {
		return fmt.Errorf("enter room in phase %s", s.Phase)
	}
	if s.Room != nil {
		return fmt.Errorf("already in room %d", s.Room.ID)
	}
	s.Room = &RoomMembership{ID: roomID, Role: role}
	return nil
}

// ExitRoom clears room membership.
func (s *State) ExitRoom() {
	s.Room = nil
}

// Snapshot returns an independent value copy of the state. Handlers
// take a snapshot under the session lock, release it, and pass the
// snapshot to directory bookkeeping.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{Phase: s.Phase}
	if s.Identity != nil {
		id := *s.Identity
		snap.Identity = &id
	}
	if s.Room != nil {
		room := *s.Room
		snap.Room = &room
	}
	return snap
}

// CheckInvariants verifies the phase/identity/room invariants. Intended
// for tests and assertions.
func (s *State) CheckInvariants() error {
	identityAllowed := s.Phase == Authenticating || s.Phase == Authenticated
	if (s.Identity != nil) != identityAllowed {
		return fmt.Errorf("identity presence %v invalid in phase %s", s.Identity != nil, s.Phase)
	}
	if s.Room != nil && s.Phase != Authenticated {
		return fmt.Errorf("room set in phase %s", s.Phase)
	}
	return nil
}

// Snapshot is an immutable copy of a State taken under its lock.
type Snapshot struct {
	Phase    Phase
	Identity *Identity
	Room     *RoomMembership
}

// Authenticated reports whether the snapshot was taken from an
// authenticated session.
func (s Snapshot) Authenticated() bool {
	return s.Phase == Authenticated && s.Identity != nil
}
