package store

import (
	"time"

	"github.com/emberchat/ember/internal/id"
)

// RoomType enumerates the kinds of room a message can belong to.
type RoomType string

const (
	RoomTypeOpen   RoomType = "open"
	RoomTypeClosed RoomType = "closed"
	RoomTypeDirect RoomType = "direct"
)

// InvolvementLevel is a member's role within a room.
type InvolvementLevel string

const (
	InvolvementMember InvolvementLevel = "member"
	InvolvementAdmin  InvolvementLevel = "admin"
)

// User is a registered account.
type User struct {
	ID           id.UserID
	Name         string
	Email        string
	PasswordHash string
	Bio          string
	Admin        bool
	BotToken     string
	CreatedAt    time.Time
}

// Room is a conversation container: open (anyone may join), closed
// (invite only), or direct (exactly two members).
type Room struct {
	ID            id.RoomID
	Name          string
	Topic         string
	RoomType      RoomType
	CreatedAt     time.Time
	LastMessageAt *time.Time
}

// Message is a single persisted chat message.
type Message struct {
	ID              id.MessageID `json:"id"`
	RoomID          id.RoomID    `json:"room_id"`
	CreatorID       id.UserID    `json:"creator_id"`
	Content         string       `json:"content"`
	ClientMessageID string       `json:"client_message_id"`
	CreatedAt       time.Time    `json:"created_at"`
	HTMLContent     string       `json:"html_content"`
	Mentions        []string     `json:"mentions"`
	SoundCommands   []string     `json:"sound_commands"`
}

// Membership associates a user with a room at a given involvement
// level.
type Membership struct {
	RoomID           id.RoomID
	UserID           id.UserID
	InvolvementLevel InvolvementLevel
	CreatedAt        time.Time
}

// Session is an active login token for a user.
type Session struct {
	Token     string
	UserID    id.UserID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PushSubscription is a browser push endpoint registered by a user.
type PushSubscription struct {
	ID         string
	UserID     id.UserID
	Endpoint   string
	P256dhKey  string
	AuthKey    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// NotificationPreferences controls which events generate a push
// notification for a user.
type NotificationPreferences struct {
	UserID                 id.UserID
	MentionsEnabled        bool
	DirectMessagesEnabled  bool
	AllMessagesEnabled     bool
	SoundsEnabled          bool
	UpdatedAt              time.Time
}
