package chatv1

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers. Client variants occupy 10-24, server
// variants 9-19; exactly one variant field may be present.
const (
	fieldRequestId = 1
	fieldStatus    = 2
	fieldMessage   = 3
)

var (
	// ErrMultipleVariants is returned when an envelope carries more
	// than one populated variant.
	ErrMultipleVariants = errors.New("chatv1: multiple payload variants")

	errWireType = errors.New("chatv1: unexpected wire type")
)

// MarshalClient encodes a request envelope.
func MarshalClient(m *ClientMessage) []byte {
	var b []byte
	b = appendString(b, fieldRequestId, m.RequestId)
	if m.Payload != nil {
		b = appendMessage(b, m.Payload.clientFieldNumber(), m.Payload.appendFields)
	}
	return b
}

// UnmarshalClient decodes a request envelope. A missing variant yields
// a ClientMessage with nil Payload; the dispatcher answers those with a
// generic failure.
func UnmarshalClient(b []byte) (*ClientMessage, error) {
	m := &ClientMessage{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldRequestId:
			v, n, err := consumeString(typ, b)
			m.RequestId = v
			return n, err
		case num >= 10 && num <= 24:
			data, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			if m.Payload != nil {
				return 0, ErrMultipleVariants
			}
			payload, err := decodeClientPayload(num, data)
			if err != nil {
				return 0, err
			}
			m.Payload = payload
			return n, nil
		}
		return skipValue(num, typ, b)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalServer encodes a response or notification envelope.
func MarshalServer(m *ServerMessage) []byte {
	var b []byte
	b = appendString(b, fieldRequestId, m.RequestId)
	b = appendVarint(b, fieldStatus, uint64(m.Status))
	b = appendString(b, fieldMessage, m.Message)
	if m.Payload != nil {
		b = appendMessage(b, m.Payload.serverFieldNumber(), m.Payload.appendFields)
	}
	return b
}

// UnmarshalServer decodes a response or notification envelope.
func UnmarshalServer(b []byte) (*ServerMessage, error) {
	m := &ServerMessage{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldRequestId:
			v, n, err := consumeString(typ, b)
			m.RequestId = v
			return n, err
		case num == fieldStatus:
			v, n, err := consumeVarint(typ, b)
			m.Status = Status(v)
			return n, err
		case num == fieldMessage:
			v, n, err := consumeString(typ, b)
			m.Message = v
			return n, err
		case num >= 9 && num <= 19:
			data, n, err := consumeBytes(typ, b)
			if err != nil {
				return 0, err
			}
			if m.Payload != nil {
				return 0, ErrMultipleVariants
			}
			payload, err := decodeServerPayload(num, data)
			if err != nil {
				return 0, err
			}
			m.Payload = payload
			return n, nil
		}
		return skipValue(num, typ, b)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodeClientPayload(num protowire.Number, data []byte) (ClientPayload, error) {
	switch num {
	case 10:
		m := &InitialAuthRequest{}
		return m, walkFields(data, stringField(1, &m.Username))
	case 11:
		m := &AuthRequest{}
		return m, walkFields(data, stringField(1, &m.Hash))
	case 12:
		m := &InitialRegisterRequest{}
		return m, walkFields(data, stringField(1, &m.Username))
	case 13:
		m := &RegisterRequest{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeString(typ, b)
				m.Salt = v
				return n, err
			case 2:
				v, n, err := consumeString(typ, b)
				m.Hash = v
				return n, err
			}
			return skipValue(num, typ, b)
		})
	case 14:
		return &LogoutRequest{}, expectEmpty(data)
	case 15:
		m := &CreateRoomRequest{}
		return m, walkFields(data, stringField(1, &m.Name))
	case 16:
		m := &JoinRoomRequest{}
		return m, walkFields(data, int64Field(1, &m.RoomId))
	case 17:
		return &LeaveRoomRequest{}, expectEmpty(data)
	case 18:
		m := &SendMessageRequest{}
		return m, walkFields(data, stringField(1, &m.Text))
	case 19:
		return &ListRoomsRequest{}, expectEmpty(data)
	case 20:
		return &ListUsersRequest{}, expectEmpty(data)
	case 21:
		m := &ListMessagesRequest{}
		return m, walkFields(data, int32Field(1, &m.Limit))
	case 22:
		m := &AssignRoleRequest{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				m.TargetUserId = int64(v)
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				m.Role = int32(v)
				return n, err
			}
			return skipValue(num, typ, b)
		})
	case 23:
		m := &RenameRoomRequest{}
		return m, walkFields(data, stringField(1, &m.Name))
	case 24:
		return &DeleteRoomRequest{}, expectEmpty(data)
	}
	return nil, fmt.Errorf("chatv1: unknown client variant %d", num)
}

func decodeServerPayload(num protowire.Number, data []byte) (ServerPayload, error) {
	switch num {
	case 9:
		m := &Hello{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeString(typ, b)
				m.ServerRole = v
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				m.ProtocolVersion = int32(v)
				return n, err
			}
			return skipValue(num, typ, b)
		})
	case 10:
		m := &SaltInfo{}
		return m, walkFields(data, stringField(1, &m.Salt))
	case 11:
		m := &RoomList{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == 1 {
				data, n, err := consumeBytes(typ, b)
				if err != nil {
					return 0, err
				}
				room, err := decodeRoomInfo(data)
				if err != nil {
					return 0, err
				}
				m.Rooms = append(m.Rooms, room)
				return n, nil
			}
			return skipValue(num, typ, b)
		})
	case 12:
		m := &UserList{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == 1 {
				data, n, err := consumeBytes(typ, b)
				if err != nil {
					return 0, err
				}
				user, err := decodeUserInfo(data)
				if err != nil {
					return 0, err
				}
				m.Users = append(m.Users, user)
				return n, nil
			}
			return skipValue(num, typ, b)
		})
	case 13:
		m := &MessageList{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == 1 {
				data, n, err := consumeBytes(typ, b)
				if err != nil {
					return 0, err
				}
				msg, err := decodeMessageInfo(data)
				if err != nil {
					return 0, err
				}
				m.Messages = append(m.Messages, msg)
				return n, nil
			}
			return skipValue(num, typ, b)
		})
	case 14:
		m := &RoomJoined{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				m.RoomId = int64(v)
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				m.Role = int32(v)
				return n, err
			}
			return skipValue(num, typ, b)
		})
	case 15:
		m := &ChatMessage{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				m.RoomId = int64(v)
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				m.UserId = int64(v)
				return n, err
			case 3:
				v, n, err := consumeString(typ, b)
				m.UserName = v
				return n, err
			case 4:
				v, n, err := consumeString(typ, b)
				m.Text = v
				return n, err
			case 5:
				v, n, err := consumeVarint(typ, b)
				m.SentAtUnix = int64(v)
				return n, err
			}
			return skipValue(num, typ, b)
		})
	case 16:
		m := &UserEvent{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				m.RoomId = int64(v)
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				m.UserId = int64(v)
				return n, err
			case 3:
				v, n, err := consumeString(typ, b)
				m.UserName = v
				return n, err
			case 4:
				v, n, err := consumeVarint(typ, b)
				m.Joined = v != 0
				return n, err
			}
			return skipValue(num, typ, b)
		})
	case 17:
		m := &RoleChanged{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				m.RoomId = int64(v)
				return n, err
			case 2:
				v, n, err := consumeVarint(typ, b)
				m.UserId = int64(v)
				return n, err
			case 3:
				v, n, err := consumeString(typ, b)
				m.UserName = v
				return n, err
			case 4:
				v, n, err := consumeVarint(typ, b)
				m.Role = int32(v)
				return n, err
			}
			return skipValue(num, typ, b)
		})
	case 18:
		m := &RoomRenamed{}
		return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			switch num {
			case 1:
				v, n, err := consumeVarint(typ, b)
				m.RoomId = int64(v)
				return n, err
			case 2:
				v, n, err := consumeString(typ, b)
				m.Name = v
				return n, err
			}
			return skipValue(num, typ, b)
		})
	case 19:
		m := &RoomDeleted{}
		return m, walkFields(data, int64Field(1, &m.RoomId))
	}
	return nil, fmt.Errorf("chatv1: unknown server variant %d", num)
}

func decodeRoomInfo(data []byte) (*RoomInfo, error) {
	m := &RoomInfo{}
	return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.Id = int64(v)
			return n, err
		case 2:
			v, n, err := consumeString(typ, b)
			m.Name = v
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, b)
			m.OwnerId = int64(v)
			return n, err
		}
		return skipValue(num, typ, b)
	})
}

func decodeUserInfo(data []byte) (*UserInfo, error) {
	m := &UserInfo{}
	return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.Id = int64(v)
			return n, err
		case 2:
			v, n, err := consumeString(typ, b)
			m.Name = v
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, b)
			m.Role = int32(v)
			return n, err
		}
		return skipValue(num, typ, b)
	})
}

func decodeMessageInfo(data []byte) (*MessageInfo, error) {
	m := &MessageInfo{}
	return m, walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(typ, b)
			m.Id = int64(v)
			return n, err
		case 2:
			v, n, err := consumeVarint(typ, b)
			m.RoomId = int64(v)
			return n, err
		case 3:
			v, n, err := consumeVarint(typ, b)
			m.AuthorId = int64(v)
			return n, err
		case 4:
			v, n, err := consumeString(typ, b)
			m.AuthorName = v
			return n, err
		case 5:
			v, n, err := consumeString(typ, b)
			m.Text = v
			return n, err
		case 6:
			v, n, err := consumeVarint(typ, b)
			m.SentAtUnix = int64(v)
			return n, err
		}
		return skipValue(num, typ, b)
	})
}

// walkFields iterates the top-level fields of a wire-format buffer.
// The callback returns the number of value bytes it consumed.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		consumed, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[consumed:]
	}
	return nil
}

func skipValue(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}

// expectEmpty validates the body of a variant that carries no fields,
// tolerating unknown fields from newer clients.
func expectEmpty(data []byte) error {
	return walkFields(data, skipValue)
}

func consumeString(typ protowire.Type, b []byte) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, errWireType
	}
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, errWireType
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, errWireType
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// stringField returns a walk callback that stores field num into dst.
func stringField(want protowire.Number, dst *string) func(protowire.Number, protowire.Type, []byte) (int, error) {
	return func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == want {
			v, n, err := consumeString(typ, b)
			*dst = v
			return n, err
		}
		return skipValue(num, typ, b)
	}
}

func int64Field(want protowire.Number, dst *int64) func(protowire.Number, protowire.Type, []byte) (int, error) {
	return func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == want {
			v, n, err := consumeVarint(typ, b)
			*dst = int64(v)
			return n, err
		}
		return skipValue(num, typ, b)
	}
}

func int32Field(want protowire.Number, dst *int32) func(protowire.Number, protowire.Type, []byte) (int, error) {
	return func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == want {
			v, n, err := consumeVarint(typ, b)
			*dst = int32(v)
			return n, err
		}
		return skipValue(num, typ, b)
	}
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendVarint(b, num, 1)
}

// appendMessage emits a length-delimited submessage, including empty
// ones: the variant tag itself is what selects the request kind.
func appendMessage(b []byte, num protowire.Number, fields func([]byte) []byte) []byte {
	inner := fields(nil)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(len(inner)))
	return append(b, inner...)
}
