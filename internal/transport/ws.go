package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/registry"
	"github.com/emberchat/ember/internal/roomservice"
	"github.com/emberchat/ember/internal/store"
)

// WebSocket close codes, mirroring the unauthorized/invalid-request/
// permission-denied split used elsewhere at this boundary.
const (
	wsCloseUnauthorized     = 4001
	wsCloseInvalidRequest   = 4002
	wsClosePermissionDenied = 4003
)

const outboundBufferSize = 256

// handleWebSocket upgrades an already-authenticated request to a
// WebSocket connection, registers it with the registry, replays any
// missed messages, then pumps inbound client frames until the
// connection closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, user store.User) {
	if s.shuttingDown() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("ws: accept failed", "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx := r.Context()
	connID := id.NewConnID()

	rooms, err := s.rooms.ListRoomsForUser(ctx, user.ID)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "failed to load rooms")
		return
	}
	roomIDs := make([]id.RoomID, len(rooms))
	for i, room := range rooms {
		roomIDs[i] = room.ID
	}

	sender := make(chan []byte, outboundBufferSize)
	if err := s.registry.AddConnection(ctx, user.ID, connID, sender, roomIDs); err != nil {
		_ = conn.Close(websocket.StatusCode(wsClosePermissionDenied), err.Error())
		return
	}
	metrics.WSConnectionsActive.Inc()
	defer func() {
		_ = s.registry.RemoveConnection(connID)
		metrics.WSConnectionsActive.Dec()
	}()

	for _, roomID := range roomIDs {
		_ = s.registry.BroadcastToRoom(ctx, roomID, registry.UserJoinedEnvelope(user.ID, roomID))
	}

	var lastSeenMessageID *id.MessageID
	if raw := r.URL.Query().Get("last_seen_message_id"); raw != "" {
		if parsed, err := id.ParseMessageID(raw); err == nil {
			lastSeenMessageID = &parsed
		} else {
			slog.Debug("ws: ignoring malformed last_seen_message_id", "value", raw, "error", err)
		}
	}
	if err := s.registry.SendMissedMessages(ctx, connID, lastSeenMessageID); err != nil {
		slog.Debug("ws: missed-message replay failed", "conn_id", connID.String(), "error", err)
	}

	writerDone := make(chan struct{})
	go s.writePump(ctx, conn, sender, writerDone)

	s.readPump(ctx, conn, connID, user, roomIDs)

	close(sender)
	<-writerDone

	for _, roomID := range roomIDs {
		_ = s.registry.BroadcastToRoom(ctx, roomID, registry.UserLeftEnvelope(user.ID, roomID))
	}
}

// writePump drains sender and writes each payload as a text frame
// until sender is closed or ctx is canceled.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, sender <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case payload, ok := <-sender:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump reads inbound client frames until the connection closes,
// dispatching each to its handler. Binary frames are ignored.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, connID id.ConnID, user store.User, rooms []id.RoomID) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame registry.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		s.handleClientFrame(ctx, connID, user, frame)
	}
}

func (s *Server) handleClientFrame(ctx context.Context, connID id.ConnID, user store.User, frame registry.ClientFrame) {
	switch frame.Type {
	case registry.ClientTypeCreateMessage:
		roomID, err := id.ParseRoomID(frame.Room)
		if err != nil {
			_ = s.registry.SendTo(connID, registry.ErrorEnvelope("invalid room id", "invalid_request"))
			return
		}
		if _, err := s.messages.CreateMessage(ctx, roomID, user.ID, frame.Content, frame.ClientMessageID, s.resolveMention); err != nil {
			slog.Debug("ws: create message failed", "error", err)
			_ = s.registry.SendTo(connID, registry.ErrorEnvelope(err.Error(), "create_message_failed"))
		}

	case registry.ClientTypeUpdateLastSeen:
		msgID, err := id.ParseMessageID(frame.MessageID)
		if err != nil {
			_ = s.registry.SendTo(connID, registry.ErrorEnvelope("invalid message id", "invalid_request"))
			return
		}
		s.registry.UpdateLastSeenMessage(connID, msgID)

	case registry.ClientTypeJoinRoom:
		roomID, err := id.ParseRoomID(frame.Room)
		if err != nil {
			_ = s.registry.SendTo(connID, registry.ErrorEnvelope("invalid room id", "invalid_request"))
			return
		}
		level, err := s.rooms.CheckRoomAccess(ctx, roomID, user.ID)
		if err != nil || level == roomservice.AccessNone {
			_ = s.registry.SendTo(connID, registry.ErrorEnvelope("access denied", "permission_denied"))
			return
		}
		_ = s.registry.Subscribe(connID, roomID)
		_ = s.registry.BroadcastToRoom(ctx, roomID, registry.UserJoinedEnvelope(user.ID, roomID))

	case registry.ClientTypeLeaveRoom:
		roomID, err := id.ParseRoomID(frame.Room)
		if err != nil {
			_ = s.registry.SendTo(connID, registry.ErrorEnvelope("invalid room id", "invalid_request"))
			return
		}
		_ = s.registry.Unsubscribe(connID, roomID)
		_ = s.registry.BroadcastToRoom(ctx, roomID, registry.UserLeftEnvelope(user.ID, roomID))

	case registry.ClientTypeStartTyping:
		roomID, err := id.ParseRoomID(frame.Room)
		if err != nil {
			_ = s.registry.SendTo(connID, registry.ErrorEnvelope("invalid room id", "invalid_request"))
			return
		}
		s.registry.StartTyping(user.ID, roomID)
		_ = s.registry.BroadcastToRoom(ctx, roomID, registry.TypingStartEnvelope(user.ID, roomID))

	case registry.ClientTypeStopTyping:
		roomID, err := id.ParseRoomID(frame.Room)
		if err != nil {
			_ = s.registry.SendTo(connID, registry.ErrorEnvelope("invalid room id", "invalid_request"))
			return
		}
		s.registry.StopTyping(user.ID, roomID)
		_ = s.registry.BroadcastToRoom(ctx, roomID, registry.TypingStopEnvelope(user.ID, roomID))
	}
}
