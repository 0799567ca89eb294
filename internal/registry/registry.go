// Package registry is Ember's in-process connection fan-out and
// presence tracker: one goroutine pair per live WebSocket connection,
// sharing a buffered outbound channel, indexed by user and by room
// so broadcasts and presence queries don't need to touch the store.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emberchat/ember/internal/id"
	"github.com/emberchat/ember/internal/store"
)

// ConnectionInfo tracks one live WebSocket connection.
type ConnectionInfo struct {
	UserID            id.UserID
	Sender            chan<- []byte
	LastSeenMessageID *id.MessageID
	ConnectedAt       time.Time
	LastActivity      time.Time
	RoomSubscriptions map[id.RoomID]struct{}
}

// PresenceInfo summarizes a user's live connections.
type PresenceInfo struct {
	ConnectionCount int
	LastSeen        time.Time
}

// RoomPresence tracks who is online and typing in a room.
type RoomPresence struct {
	OnlineUsers map[id.UserID]struct{}
	TypingUsers map[id.UserID]time.Time
}

// Registry is the in-process connection registry and presence
// tracker described above. All exported methods are safe for
// concurrent use.
type Registry struct {
	store *store.Store
	log   *slog.Logger

	mu               sync.RWMutex
	connections      map[id.ConnID]*ConnectionInfo
	userConnections  map[id.UserID][]id.ConnID
	roomMembers      map[id.RoomID][]id.UserID
	presence         map[id.UserID]*PresenceInfo
	roomPresence     map[id.RoomID]*RoomPresence

	maxConnsPerUser int
}

// New constructs an empty Registry. maxConnsPerUser <= 0 means
// unlimited simultaneous connections per user.
func New(st *store.Store, maxConnsPerUser int) *Registry {
	return &Registry{
		store:           st,
		log:             slog.With("component", "registry"),
		connections:     make(map[id.ConnID]*ConnectionInfo),
		userConnections: make(map[id.UserID][]id.ConnID),
		roomMembers:     make(map[id.RoomID][]id.UserID),
		presence:        make(map[id.UserID]*PresenceInfo),
		roomPresence:    make(map[id.RoomID]*RoomPresence),
		maxConnsPerUser: maxConnsPerUser,
	}
}

// ErrConnectionLimitExceeded is returned by AddConnection when
// userID already holds the configured maximum number of simultaneous
// connections.
var ErrConnectionLimitExceeded = errorString("registry: per-user connection limit exceeded")

type errorString string

func (e errorString) Error() string { return string(e) }

// AddConnection registers a new live connection for userID, seeded
// with the rooms the user currently belongs to (so broadcasts reach
// it immediately without a separate subscribe round trip).
func (r *Registry) AddConnection(ctx context.Context, userID id.UserID, connID id.ConnID, sender chan<- []byte, rooms []id.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxConnsPerUser > 0 && len(r.userConnections[userID]) >= r.maxConnsPerUser {
		return ErrConnectionLimitExceeded
	}

	subs := make(map[id.RoomID]struct{}, len(rooms))
	for _, rid := range rooms {
		subs[rid] = struct{}{}
	}

	now := time.Now()
	r.connections[connID] = &ConnectionInfo{
		UserID:            userID,
		Sender:            sender,
		ConnectedAt:       now,
		LastActivity:      now,
		RoomSubscriptions: subs,
	}
	r.userConnections[userID] = append(r.userConnections[userID], connID)

	if p, ok := r.presence[userID]; ok {
		p.ConnectionCount++
		p.LastSeen = now
	} else {
		r.presence[userID] = &PresenceInfo{ConnectionCount: 1, LastSeen: now}
	}

	for rid := range subs {
		r.addToRoomPresenceLocked(rid, userID)
	}
	return nil
}

// RemoveConnection drops a connection. Returns ErrNotFound if the
// connection is already gone (the sweeper tolerates this; callers
// doing an explicit remove should check it).
func (r *Registry) RemoveConnection(connID id.ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeConnectionLocked(connID)
}

func (r *Registry) removeConnectionLocked(connID id.ConnID) error {
	info, ok := r.connections[connID]
	if !ok {
		return ErrNotFound
	}
	delete(r.connections, connID)

	conns := r.userConnections[info.UserID]
	for i, c := range conns {
		if c == connID {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(r.userConnections, info.UserID)
		delete(r.presence, info.UserID)
		for rid := range info.RoomSubscriptions {
			r.removeFromRoomPresenceLocked(rid, info.UserID)
		}
	} else {
		r.userConnections[info.UserID] = conns
		if p, ok := r.presence[info.UserID]; ok {
			p.ConnectionCount--
		}
	}
	return nil
}

func (r *Registry) addToRoomPresenceLocked(roomID id.RoomID, userID id.UserID) {
	rp, ok := r.roomPresence[roomID]
	if !ok {
		rp = &RoomPresence{OnlineUsers: make(map[id.UserID]struct{}), TypingUsers: make(map[id.UserID]time.Time)}
		r.roomPresence[roomID] = rp
	}
	rp.OnlineUsers[userID] = struct{}{}
}

func (r *Registry) removeFromRoomPresenceLocked(roomID id.RoomID, userID id.UserID) {
	rp, ok := r.roomPresence[roomID]
	if !ok {
		return
	}
	delete(rp.OnlineUsers, userID)
	delete(rp.TypingUsers, userID)
}

// Subscribe adds roomID to connID's room subscriptions, so future
// broadcasts to that room reach it.
func (r *Registry) Subscribe(connID id.ConnID, roomID id.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.connections[connID]
	if !ok {
		return ErrNotFound
	}
	info.RoomSubscriptions[roomID] = struct{}{}
	r.addToRoomPresenceLocked(roomID, info.UserID)
	return nil
}

// Unsubscribe removes roomID from connID's room subscriptions.
func (r *Registry) Unsubscribe(connID id.ConnID, roomID id.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.connections[connID]
	if !ok {
		return ErrNotFound
	}
	delete(info.RoomSubscriptions, roomID)

	stillPresent := false
	for _, other := range r.userConnections[info.UserID] {
		if other == connID {
			continue
		}
		if otherInfo, ok := r.connections[other]; ok {
			if _, subscribed := otherInfo.RoomSubscriptions[roomID]; subscribed {
				stillPresent = true
				break
			}
		}
	}
	if !stillPresent {
		r.removeFromRoomPresenceLocked(roomID, info.UserID)
	}
	return nil
}

// UpdateLastSeenMessage records the last message id a connection has
// acknowledged, used to resume replay on the next reconnect.
func (r *Registry) UpdateLastSeenMessage(connID id.ConnID, msgID id.MessageID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.connections[connID]; ok {
		info.LastSeenMessageID = &msgID
		info.LastActivity = time.Now()
	}
}

// OnlineUsers returns the set of users the registry believes are
// currently online in roomID.
func (r *Registry) OnlineUsers(roomID id.RoomID) []id.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.roomPresence[roomID]
	if !ok {
		return nil
	}
	out := make([]id.UserID, 0, len(rp.OnlineUsers))
	for u := range rp.OnlineUsers {
		out = append(out, u)
	}
	return out
}

// IsOnline reports whether userID currently has at least one live
// connection.
func (r *Registry) IsOnline(userID id.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presence[userID]
	return ok && p.ConnectionCount > 0
}
