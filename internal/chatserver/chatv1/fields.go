package chatv1

import "google.golang.org/protobuf/encoding/protowire"

func (*InitialAuthRequest) clientFieldNumber() protowire.Number     { return 10 }
func (*AuthRequest) clientFieldNumber() protowire.Number            { return 11 }
func (*InitialRegisterRequest) clientFieldNumber() protowire.Number { return 12 }
func (*RegisterRequest) clientFieldNumber() protowire.Number        { return 13 }
func (*LogoutRequest) clientFieldNumber() protowire.Number          { return 14 }
func (*CreateRoomRequest) clientFieldNumber() protowire.Number      { return 15 }
func (*JoinRoomRequest) clientFieldNumber() protowire.Number        { return 16 }
func (*LeaveRoomRequest) clientFieldNumber() protowire.Number       { return 17 }
func (*SendMessageRequest) clientFieldNumber() protowire.Number     { return 18 }
func (*ListRoomsRequest) clientFieldNumber() protowire.Number       { return 19 }
func (*ListUsersRequest) clientFieldNumber() protowire.Number       { return 20 }
func (*ListMessagesRequest) clientFieldNumber() protowire.Number    { return 21 }
func (*AssignRoleRequest) clientFieldNumber() protowire.Number      { return 22 }
func (*RenameRoomRequest) clientFieldNumber() protowire.Number      { return 23 }
func (*DeleteRoomRequest) clientFieldNumber() protowire.Number      { return 24 }

func (m *InitialAuthRequest) appendFields(b []byte) []byte {
	return appendString(b, 1, m.Username)
}

func (m *AuthRequest) appendFields(b []byte) []byte {
	return appendString(b, 1, m.Hash)
}

func (m *InitialRegisterRequest) appendFields(b []byte) []byte {
	return appendString(b, 1, m.Username)
}

func (m *RegisterRequest) appendFields(b []byte) []byte {
	b = appendString(b, 1, m.Salt)
	return appendString(b, 2, m.Hash)
}

func (m *LogoutRequest) appendFields(b []byte) []byte { return b }

func (m *CreateRoomRequest) appendFields(b []byte) []byte {
	return appendString(b, 1, m.Name)
}

func (m *JoinRoomRequest) appendFields(b []byte) []byte {
	return appendVarint(b, 1, uint64(m.RoomId))
}

func (m *LeaveRoomRequest) appendFields(b []byte) []byte { return b }

func (m *SendMessageRequest) appendFields(b []byte) []byte {
	return appendString(b, 1, m.Text)
}

func (m *ListRoomsRequest) appendFields(b []byte) []byte { return b }

func (m *ListUsersRequest) appendFields(b []byte) []byte { return b }

func (m *ListMessagesRequest) appendFields(b []byte) []byte {
	return appendVarint(b, 1, uint64(m.Limit))
}

func (m *AssignRoleRequest) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.TargetUserId))
	return appendVarint(b, 2, uint64(m.Role))
}

func (m *RenameRoomRequest) appendFields(b []byte) []byte {
	return appendString(b, 1, m.Name)
}

func (m *DeleteRoomRequest) appendFields(b []byte) []byte { return b }

func (*Hello) serverFieldNumber() protowire.Number       { return 9 }
func (*SaltInfo) serverFieldNumber() protowire.Number    { return 10 }
func (*RoomList) serverFieldNumber() protowire.Number    { return 11 }
func (*UserList) serverFieldNumber() protowire.Number    { return 12 }
func (*MessageList) serverFieldNumber() protowire.Number { return 13 }
func (*RoomJoined) serverFieldNumber() protowire.Number  { return 14 }
func (*ChatMessage) serverFieldNumber() protowire.Number { return 15 }
func (*UserEvent) serverFieldNumber() protowire.Number   { return 16 }
func (*RoleChanged) serverFieldNumber() protowire.Number { return 17 }
func (*RoomRenamed) serverFieldNumber() protowire.Number { return 18 }
func (*RoomDeleted) serverFieldNumber() protowire.Number { return 19 }

func (m *Hello) appendFields(b []byte) []byte {
	b = appendString(b, 1, m.ServerRole)
	return appendVarint(b, 2, uint64(m.ProtocolVersion))
}

func (m *SaltInfo) appendFields(b []byte) []byte {
	return appendString(b, 1, m.Salt)
}

func (m *RoomList) appendFields(b []byte) []byte {
	for _, room := range m.Rooms {
		b = appendMessage(b, 1, room.appendFields)
	}
	return b
}

func (m *RoomInfo) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.Id))
	b = appendString(b, 2, m.Name)
	return appendVarint(b, 3, uint64(m.OwnerId))
}

func (m *UserList) appendFields(b []byte) []byte {
	for _, user := range m.Users {
		b = appendMessage(b, 1, user.appendFields)
	}
	return b
}

func (m *UserInfo) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.Id))
	b = appendString(b, 2, m.Name)
	return appendVarint(b, 3, uint64(m.Role))
}

func (m *MessageList) appendFields(b []byte) []byte {
	for _, msg := range m.Messages {
		b = appendMessage(b, 1, msg.appendFields)
	}
	return b
}

func (m *MessageInfo) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.Id))
	b = appendVarint(b, 2, uint64(m.RoomId))
	b = appendVarint(b, 3, uint64(m.AuthorId))
	b = appendString(b, 4, m.AuthorName)
	b = appendString(b, 5, m.Text)
	return appendVarint(b, 6, uint64(m.SentAtUnix))
}

func (m *RoomJoined) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.RoomId))
	return appendVarint(b, 2, uint64(m.Role))
}

func (m *ChatMessage) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.RoomId))
	b = appendVarint(b, 2, uint64(m.UserId))
	b = appendString(b, 3, m.UserName)
	b = appendString(b, 4, m.Text)
	return appendVarint(b, 5, uint64(m.SentAtUnix))
}

func (m *UserEvent) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.RoomId))
	b = appendVarint(b, 2, uint64(m.UserId))
	b = appendString(b, 3, m.UserName)
	return appendBool(b, 4, m.Joined)
}

func (m *RoleChanged) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.RoomId))
	b = appendVarint(b, 2, uint64(m.UserId))
	b = appendString(b, 3, m.UserName)
	return appendVarint(b, 4, uint64(m.Role))
}

func (m *RoomRenamed) appendFields(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.RoomId))
	return appendString(b, 2, m.Name)
}

func (m *RoomDeleted) appendFields(b []byte) []byte {
	return appendVarint(b, 1, uint64(m.RoomId))
}
