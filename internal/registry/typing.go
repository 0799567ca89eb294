package registry

import (
	"time"

	"github.com/emberchat/ember/internal/id"
)

// StartTyping records that userID began typing in roomID.
func (r *Registry) StartTyping(userID id.UserID, roomID id.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rp, ok := r.roomPresence[roomID]
	if !ok {
		rp = &RoomPresence{OnlineUsers: make(map[id.UserID]struct{}), TypingUsers: make(map[id.UserID]time.Time)}
		r.roomPresence[roomID] = rp
	}
	rp.TypingUsers[userID] = time.Now()
}

// StopTyping clears userID's typing indicator in roomID.
func (r *Registry) StopTyping(userID id.UserID, roomID id.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rp, ok := r.roomPresence[roomID]; ok {
		delete(rp.TypingUsers, userID)
	}
}

// GetTypingUsers returns the users currently typing in roomID.
func (r *Registry) GetTypingUsers(roomID id.RoomID) []id.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.roomPresence[roomID]
	if !ok {
		return nil
	}
	out := make([]id.UserID, 0, len(rp.TypingUsers))
	for u := range rp.TypingUsers {
		out = append(out, u)
	}
	return out
}

// expireTypingLocked removes typing entries older than maxAge. Called
// by the sweeper with the registry lock already held.
func (r *Registry) expireTypingLocked(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	for _, rp := range r.roomPresence {
		for user, startedAt := range rp.TypingUsers {
			if startedAt.Before(cutoff) {
				delete(rp.TypingUsers, user)
			}
		}
	}
}
