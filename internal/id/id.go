// Package id defines the opaque identifier newtypes shared across the
// store and service layers. Every entity id is a 128-bit UUID wrapped
// in a distinct Go type so that a UserID can never be passed where a
// RoomID is expected without a compile error.
package id

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// UserID identifies a user account.
type UserID uuid.UUID

// RoomID identifies a room (direct or multi-member).
type RoomID uuid.UUID

// MessageID identifies a persisted message.
type MessageID uuid.UUID

// ConnID identifies a live WebSocket connection. Connection ids are
// process-local and never persisted, but they share the same
// representation so the registry can reuse the same helpers.
type ConnID uuid.UUID

// NewUserID generates a new random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewRoomID generates a new random RoomID.
func NewRoomID() RoomID { return RoomID(uuid.New()) }

// NewMessageID generates a new random MessageID.
func NewMessageID() MessageID { return MessageID(uuid.New()) }

// NewConnID generates a new random ConnID.
func NewConnID() ConnID { return ConnID(uuid.New()) }

func (u UserID) String() string    { return uuid.UUID(u).String() }
func (r RoomID) String() string    { return uuid.UUID(r).String() }
func (m MessageID) String() string { return uuid.UUID(m).String() }
func (c ConnID) String() string    { return uuid.UUID(c).String() }

// IsNil reports whether the id is the zero UUID, i.e. was never set.
func (u UserID) IsNil() bool    { return u == UserID{} }
func (r RoomID) IsNil() bool    { return r == RoomID{} }
func (m MessageID) IsNil() bool { return m == MessageID{} }

// ParseUserID parses a canonical UUID string into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("id: parse user id %q: %w", s, err)
	}
	return UserID(u), nil
}

// ParseRoomID parses a canonical UUID string into a RoomID.
func ParseRoomID(s string) (RoomID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RoomID{}, fmt.Errorf("id: parse room id %q: %w", s, err)
	}
	return RoomID(u), nil
}

// ParseMessageID parses a canonical UUID string into a MessageID.
func ParseMessageID(s string) (MessageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, fmt.Errorf("id: parse message id %q: %w", s, err)
	}
	return MessageID(u), nil
}

// MarshalText implements encoding.TextMarshaler so ids serialize as
// their canonical UUID string in JSON, rather than a raw byte array.
func (u UserID) MarshalText() ([]byte, error)    { return []byte(u.String()), nil }
func (r RoomID) MarshalText() ([]byte, error)    { return []byte(r.String()), nil }
func (m MessageID) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
func (c ConnID) MarshalText() ([]byte, error)    { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler, the inverse of
// MarshalText.
func (u *UserID) UnmarshalText(text []byte) error {
	parsed, err := ParseUserID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func (r *RoomID) UnmarshalText(text []byte) error {
	parsed, err := ParseRoomID(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (m *MessageID) UnmarshalText(text []byte) error {
	parsed, err := ParseMessageID(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer so ids can be written directly with
// database/sql, stored as their canonical text form.
func (u UserID) Value() (driver.Value, error)    { return uuid.UUID(u).String(), nil }
func (r RoomID) Value() (driver.Value, error)    { return uuid.UUID(r).String(), nil }
func (m MessageID) Value() (driver.Value, error) { return uuid.UUID(m).String(), nil }

// Scan implements sql.Scanner so ids can be read directly from
// database/sql query results.
func (u *UserID) Scan(src any) error {
	parsed, err := scanUUID(src)
	if err != nil {
		return fmt.Errorf("id: scan user id: %w", err)
	}
	*u = UserID(parsed)
	return nil
}

func (r *RoomID) Scan(src any) error {
	parsed, err := scanUUID(src)
	if err != nil {
		return fmt.Errorf("id: scan room id: %w", err)
	}
	*r = RoomID(parsed)
	return nil
}

func (m *MessageID) Scan(src any) error {
	parsed, err := scanUUID(src)
	if err != nil {
		return fmt.Errorf("id: scan message id: %w", err)
	}
	*m = MessageID(parsed)
	return nil
}

func scanUUID(src any) (uuid.UUID, error) {
	switch v := src.(type) {
	case string:
		return uuid.Parse(v)
	case []byte:
		return uuid.Parse(string(v))
	case nil:
		return uuid.UUID{}, nil
	default:
		return uuid.UUID{}, fmt.Errorf("unsupported scan type %T", src)
	}
}
