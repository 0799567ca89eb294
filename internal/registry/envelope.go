package registry

import (
	"encoding/json"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
)

// Envelope is the outbound tagged-union frame sent to clients over
// their WebSocket connection. Type is the JSON discriminator and
// decides which of the payload fields are populated.
type Envelope struct {
	Type string `json:"type"`

	Message     *store.Message `json:"message,omitempty"`
	User        string         `json:"user,omitempty"`
	Room        string         `json:"room,omitempty"`
	OnlineUsers []string       `json:"online_users,omitempty"`
	SoundName   string         `json:"sound_name,omitempty"`
	TriggeredBy string         `json:"triggered_by,omitempty"`
	Timestamp   *time.Time     `json:"timestamp,omitempty"`
	ErrorText   string         `json:"error_message,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
}

const (
	TypeNewMessage     = "new_message"
	TypeUserJoined     = "user_joined"
	TypeUserLeft       = "user_left"
	TypeTypingStart    = "typing_start"
	TypeTypingStop     = "typing_stop"
	TypePresenceUpdate = "presence_update"
	TypeSoundPlayback  = "sound_playback"
	TypeError          = "error"
)

func NewMessageEnvelope(msg store.Message) Envelope {
	return Envelope{Type: TypeNewMessage, Message: &msg}
}

func UserJoinedEnvelope(userID id.UserID, roomID id.RoomID) Envelope {
	return Envelope{Type: TypeUserJoined, User: userID.String(), Room: roomID.String()}
}

func UserLeftEnvelope(userID id.UserID, roomID id.RoomID) Envelope {
	return Envelope{Type: TypeUserLeft, User: userID.String(), Room: roomID.String()}
}

func TypingStartEnvelope(userID id.UserID, roomID id.RoomID) Envelope {
	return Envelope{Type: TypeTypingStart, User: userID.String(), Room: roomID.String()}
}

func TypingStopEnvelope(userID id.UserID, roomID id.RoomID) Envelope {
	return Envelope{Type: TypeTypingStop, User: userID.String(), Room: roomID.String()}
}

func PresenceUpdateEnvelope(roomID id.RoomID, onlineUsers []id.UserID) Envelope {
	users := make([]string, len(onlineUsers))
	for i, u := range onlineUsers {
		users[i] = u.String()
	}
	return Envelope{Type: TypePresenceUpdate, Room: roomID.String(), OnlineUsers: users}
}

func SoundPlaybackEnvelope(sound string, triggeredBy id.UserID, roomID id.RoomID, ts time.Time) Envelope {
	return Envelope{Type: TypeSoundPlayback, SoundName: sound, TriggeredBy: triggeredBy.String(), Room: roomID.String(), Timestamp: &ts}
}

func ErrorEnvelope(message, code string) Envelope {
	return Envelope{Type: TypeError, ErrorText: message, ErrorCode: code}
}

// ClientFrame is the inbound tagged-union frame a client sends over
// its WebSocket connection.
type ClientFrame struct {
	Type string `json:"type"`

	Room            string `json:"room,omitempty"`
	Content         string `json:"content,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
}

const (
	ClientTypeCreateMessage   = "create_message"
	ClientTypeUpdateLastSeen  = "update_last_seen"
	ClientTypeJoinRoom        = "join_room"
	ClientTypeLeaveRoom       = "leave_room"
	ClientTypeStartTyping     = "start_typing"
	ClientTypeStopTyping      = "stop_typing"
)

// MarshalEnvelope serializes env once so it can be fanned out to many
// subscribers without re-encoding per recipient.
func MarshalEnvelope(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}
