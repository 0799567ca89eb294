// Package messageservice implements the ingestion hot path: validate,
// authorize, extract rich text, persist with deduplication, broadcast
// to the room's live connections, and hand off to push notification
// recipient selection.
package messageservice

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/metrics"
	"github.com/emberchat/ember/internal/ratelimit"
	"github.com/emberchat/ember/internal/richtext"
	"github.com/emberchat/ember/internal/roomservice"
	"github.com/emberchat/ember/internal/store"
)

// RoomAuthorizer is the subset of RoomService's API MessageService
// needs for access control, kept as an interface so tests can fake it.
type RoomAuthorizer interface {
	CanPost(ctx context.Context, roomID id.RoomID, userID id.UserID) (bool, error)
	CheckRoomAccess(ctx context.Context, roomID id.RoomID, userID id.UserID) (roomservice.AccessLevel, error)
}

// Broadcaster fans a persisted message out to a room's live
// connections. A failure to reach some subscribers must never fail
// the ingestion request — callers only log it.
type Broadcaster interface {
	BroadcastNewMessage(ctx context.Context, roomID id.RoomID, msg store.Message) error
}

// Notifier hands a persisted message off to push-notification
// recipient selection.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, msg store.Message, room store.Room) error
}

// Service is the message ingestion and retrieval hot path.
type Service struct {
	store       *store.Store
	rooms       RoomAuthorizer
	limiter     *ratelimit.Limiter
	broadcaster Broadcaster
	notifier    Notifier
	maxLength   int
	log         *slog.Logger
}

// Config bundles Service's dependencies.
type Config struct {
	Store       *store.Store
	Rooms       RoomAuthorizer
	Limiter     *ratelimit.Limiter
	Broadcaster Broadcaster
	Notifier    Notifier
	MaxLength   int
}

// New constructs a Service from cfg.
func New(cfg Config) *Service {
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 10000
	}
	return &Service{
		store:       cfg.Store,
		rooms:       cfg.Rooms,
		limiter:     cfg.Limiter,
		broadcaster: cfg.Broadcaster,
		notifier:    cfg.Notifier,
		maxLength:   maxLength,
		log:         slog.With("component", "messageservice"),
	}
}

// UserLookupFunc resolves a username to a user id for mention linking.
type UserLookupFunc func(ctx context.Context, username string) (id.UserID, bool)

// CreateMessage validates, authorizes, persists, broadcasts, and
// triggers push notifications for a new message. Dedup hits (the
// client retried a send whose ack was lost) skip broadcast and push
// but still report success.
func (s *Service) CreateMessage(ctx context.Context, roomID id.RoomID, userID id.UserID, content, clientMessageID string, lookup UserLookupFunc) (store.Message, error) {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		return store.Message{}, newErr(KindRateLimit, "rate limit exceeded", nil)
	}

	canPost, err := s.rooms.CanPost(ctx, roomID, userID)
	if err != nil {
		return store.Message{}, newErr(KindDatabase, "check post authorization", err)
	}
	if !canPost {
		return store.Message{}, newErr(KindAuthorization, "not a member of this room", nil)
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return store.Message{}, newErr(KindContentTooShort, "message content must not be empty", nil)
	}

	processed, err := richtext.Process(content, func(username string) (id.UserID, bool) {
		if lookup == nil {
			return id.UserID{}, false
		}
		return lookup(ctx, username)
	})
	if err != nil {
		return store.Message{}, newErr(KindInvalidContent, "sanitization removed all content", err)
	}
	if len(processed.HTML) > s.maxLength {
		return store.Message{}, newErr(KindContentTooLong, "message content exceeds the maximum length", nil)
	}

	msg := store.Message{
		ID:              id.NewMessageID(),
		RoomID:          roomID,
		CreatorID:       userID,
		Content:         content,
		ClientMessageID: clientMessageID,
		CreatedAt:       time.Now(),
		HTMLContent:     processed.HTML,
		Mentions:        processed.Mentions,
		SoundCommands:   processed.PlayCommands,
	}

	stored, err := s.store.CreateMessageWithDeduplication(ctx, msg)
	if err != nil {
		return store.Message{}, newErr(KindDatabase, "persist message", err)
	}
	if stored.ID != msg.ID {
		// A row with this (client_message_id, room_id) already existed:
		// the client is retrying a send whose ack it never saw. Report
		// success without re-broadcasting or re-notifying.
		return stored, nil
	}
	metrics.MessagesCreatedTotal.Inc()

	if s.broadcaster != nil {
		if err := s.broadcaster.BroadcastNewMessage(ctx, roomID, stored); err != nil {
			s.log.Warn("broadcast failed", "room_id", roomID.String(), "error", err)
		}
	}

	if s.notifier != nil {
		room, err := s.store.GetRoom(ctx, roomID)
		if err != nil {
			s.log.Warn("could not load room for notification", "room_id", roomID.String(), "error", err)
		} else if err := s.notifier.NotifyNewMessage(ctx, stored, room); err != nil {
			s.log.Warn("notify failed", "message_id", stored.ID.String(), "error", err)
		}
	}

	return stored, nil
}

// GetRoomMessages returns up to limit (clamped to 100) messages from
// roomID, newest-first, strictly older than the message identified by
// before if supplied.
func (s *Service) GetRoomMessages(ctx context.Context, roomID id.RoomID, userID id.UserID, limit int, before *id.MessageID) ([]store.Message, error) {
	level, err := s.rooms.CheckRoomAccess(ctx, roomID, userID)
	if err != nil {
		return nil, newErr(KindDatabase, "check room access", err)
	}
	if level == roomservice.AccessNone {
		return nil, newErr(KindAuthorization, "no access to this room", nil)
	}

	if limit <= 0 || limit > 100 {
		limit = 100
	}

	messages, err := s.store.ListMessagesBefore(ctx, roomID, before, limit)
	if err != nil {
		return nil, newErr(KindDatabase, "list messages", err)
	}
	return messages, nil
}
