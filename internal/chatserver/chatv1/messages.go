// Package chatv1 defines the version-1 chat wire protocol: a framed
// binary envelope carrying exactly one typed request or response
// variant, encoded in protobuf wire format. The codec is maintained by
// hand on top of google.golang.org/protobuf/encoding/protowire so the
// variant set stays a closed Go sum type.
package chatv1

import "google.golang.org/protobuf/encoding/protowire"

// ProtocolVersion is the version announced in the Hello handshake.
const ProtocolVersion = 1

// ServerRole is the role tag the server announces in the Hello
// handshake, distinguishing a chat server from a directory relay.
const ServerRole = "chat"

// Status is the outcome code carried by every server response.
type Status int32

const (
	StatusUnspecified  Status = 0
	StatusSuccess      Status = 1
	StatusFailure      Status = 2
	StatusUnauthorized Status = 3
	StatusNotFound     Status = 4
)

// String returns the wire-stable status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailure:
		return "FAILURE"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusNotFound:
		return "NOT_FOUND"
	}
	return "UNSPECIFIED"
}

// ClientMessage is the request envelope. Payload holds exactly one
// variant; a nil Payload denotes an empty envelope, which the server
// answers with a generic failure.
type ClientMessage struct {
	RequestId string
	Payload   ClientPayload
}

// ClientPayload is the closed set of request variants.
type ClientPayload interface {
	clientFieldNumber() protowire.Number
	appendFields(b []byte) []byte
}

// InitialAuthRequest opens authentication for an existing account and
// asks for its salt.
type InitialAuthRequest struct {
	Username string
}

// AuthRequest presents the credential hash for the account named in
// the preceding InitialAuthRequest.
type AuthRequest struct {
	Hash string
}

// InitialRegisterRequest reserves a free account name.
type InitialRegisterRequest struct {
	Username string
}

// RegisterRequest completes registration with client-generated salt
// and credential hash.
type RegisterRequest struct {
	Salt string
	Hash string
}

// LogoutRequest ends the authenticated session; identity and room are
// cleared.
type LogoutRequest struct{}

// CreateRoomRequest creates a room owned by the requester.
type CreateRoomRequest struct {
	Name string
}

// JoinRoomRequest enters an existing room.
type JoinRoomRequest struct {
	RoomId int64
}

// LeaveRoomRequest exits the current room.
type LeaveRoomRequest struct{}

// SendMessageRequest posts a message to the current room.
type SendMessageRequest struct {
	Text string
}

// ListRoomsRequest asks for all rooms.
type ListRoomsRequest struct{}

// ListUsersRequest asks for the occupants of the current room.
type ListUsersRequest struct{}

// ListMessagesRequest asks for the most recent messages of the current
// room, newest last. A zero limit uses the server default.
type ListMessagesRequest struct {
	Limit int32
}

// AssignRoleRequest changes another user's role in the current room.
// Assigning RoleOwner transfers ownership atomically.
type AssignRoleRequest struct {
	TargetUserId int64
	Role         int32
}

// RenameRoomRequest renames the current room.
type RenameRoomRequest struct {
	Name string
}

// DeleteRoomRequest deletes the current room and its messages.
type DeleteRoomRequest struct{}

// ServerMessage is the response envelope. Status and Message describe
// the outcome; Payload optionally carries typed data or a notification.
type ServerMessage struct {
	RequestId string
	Status    Status
	Message   string
	Payload   ServerPayload
}

// ServerPayload is the closed set of response and notification variants.
type ServerPayload interface {
	serverFieldNumber() protowire.Number
	appendFields(b []byte) []byte
}

// Hello is sent once, immediately after connection open.
type Hello struct {
	ServerRole      string
	ProtocolVersion int32
}

// SaltInfo answers InitialAuthRequest with the account's salt.
type SaltInfo struct {
	Salt string
}

// RoomInfo describes one room.
type RoomInfo struct {
	Id      int64
	Name    string
	OwnerId int64
}

// RoomList answers ListRoomsRequest.
type RoomList struct {
	Rooms []*RoomInfo
}

// UserInfo describes one room occupant.
type UserInfo struct {
	Id   int64
	Name string
	Role int32
}

// UserList answers ListUsersRequest.
type UserList struct {
	Users []*UserInfo
}

// MessageInfo describes one stored chat message.
type MessageInfo struct {
	Id         int64
	RoomId     int64
	AuthorId   int64
	AuthorName string
	Text       string
	SentAtUnix int64
}

// MessageList answers ListMessagesRequest.
type MessageList struct {
	Messages []*MessageInfo
}

// RoomJoined answers JoinRoomRequest with the role granted in the room.
type RoomJoined struct {
	RoomId int64
	Role   int32
}

// ChatMessage is the room broadcast for a posted message.
type ChatMessage struct {
	RoomId     int64
	UserId     int64
	UserName   string
	Text       string
	SentAtUnix int64
}

// UserEvent is the room broadcast for a join (Joined true) or leave.
type UserEvent struct {
	RoomId   int64
	UserId   int64
	UserName string
	Joined   bool
}

// RoleChanged is the room broadcast for a role assignment.
type RoleChanged struct {
	RoomId   int64
	UserId   int64
	UserName string
	Role     int32
}

// RoomRenamed is the room broadcast for a rename.
type RoomRenamed struct {
	RoomId int64
	Name   string
}

// RoomDeleted is the broadcast sent to detached members of a deleted
// room.
type RoomDeleted struct {
	RoomId int64
}
