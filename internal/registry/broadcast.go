package registry

import (
	"context"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/store"
)

// BroadcastToRoom serializes env once and fans it out to every
// connection subscribed to roomID. Sends are best-effort: a full or
// closed outbound channel is counted as a failure but never blocks
// the broadcast or fails the caller's request outright.
func (r *Registry) BroadcastToRoom(ctx context.Context, roomID id.RoomID, env Envelope) error {
	payload, err := MarshalEnvelope(env)
	if err != nil {
		return err
	}

	r.mu.RLock()
	var recipients []chan<- []byte
	for _, info := range r.connections {
		if _, subscribed := info.RoomSubscriptions[roomID]; subscribed {
			recipients = append(recipients, info.Sender)
		}
	}
	r.mu.RUnlock()

	if len(recipients) == 0 {
		return ErrNoConnections
	}

	failed := 0
	for _, sender := range recipients {
		if !trySend(sender, payload) {
			failed++
		}
	}
	if failed > 0 {
		return &PartialFailureError{FailedCount: failed}
	}
	return nil
}

// trySend is a non-blocking send; a full or closed channel reports false.
func trySend(ch chan<- []byte, payload []byte) (sent bool) {
	defer func() { _ = recover() }()
	select {
	case ch <- payload:
		return true
	default:
		return false
	}
}

// SendTo delivers env to a single connection, used for per-connection
// responses such as error frames that shouldn't go to the whole room.
func (r *Registry) SendTo(connID id.ConnID, env Envelope) error {
	payload, err := MarshalEnvelope(env)
	if err != nil {
		return err
	}

	r.mu.RLock()
	info, ok := r.connections[connID]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	select {
	case info.Sender <- payload:
		return nil
	default:
		return &PartialFailureError{FailedCount: 1}
	}
}

// BroadcastNewMessage is a convenience wrapper implementing
// messageservice.Broadcaster.
func (r *Registry) BroadcastNewMessage(ctx context.Context, roomID id.RoomID, msg store.Message) error {
	err := r.BroadcastToRoom(ctx, roomID, NewMessageEnvelope(msg))
	if err == nil {
		metrics.WSMessagesTotal.Inc()
	}
	if err == ErrNoConnections {
		return nil
	}
	return err
}

// SendMissedMessages replays messages the connection hasn't seen yet
// across every room it's subscribed to, capped at 100, in a single
// chronologically-ordered stream, updating the connection's last-seen
// cursor after each successful send. lastSeenMessageID is a single
// watermark spanning all of the connection's rooms, not a per-room
// cursor: with it set, only messages strictly newer than it are
// replayed; nil replays the most recent 100 across all rooms.
func (r *Registry) SendMissedMessages(ctx context.Context, connID id.ConnID, lastSeenMessageID *id.MessageID) error {
	r.mu.RLock()
	info, ok := r.connections[connID]
	var roomIDs []id.RoomID
	if ok {
		roomIDs = make([]id.RoomID, 0, len(info.RoomSubscriptions))
		for rid := range info.RoomSubscriptions {
			roomIDs = append(roomIDs, rid)
		}
	}
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if len(roomIDs) == 0 {
		return nil
	}

	const replayCap = 100
	messages, err := r.store.GetMessagesSince(ctx, roomIDs, lastSeenMessageID, replayCap)
	if err != nil {
		return err
	}
	if lastSeenMessageID == nil {
		// The initial load comes back newest-first; replay it oldest-first.
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}

	for _, msg := range messages {
		payload, err := MarshalEnvelope(NewMessageEnvelope(msg))
		if err != nil {
			return err
		}
		select {
		case info.Sender <- payload:
			r.UpdateLastSeenMessage(connID, msg.ID)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
