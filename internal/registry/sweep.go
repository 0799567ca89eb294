package registry

import (
	"context"
	"time"
)

// RunSweeper runs the background presence/typing sweeper until ctx is
// canceled. Every tick it expires stale typing indicators and drops
// presence entries whose LastSeen is older than presenceMaxAge,
// together with all of that user's connections. It does not look for
// closed outbound channels.
func (r *Registry) RunSweeper(ctx context.Context, tick, presenceMaxAge, typingMaxAge time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(presenceMaxAge, typingMaxAge)
		}
	}
}

func (r *Registry) sweep(presenceMaxAge, typingMaxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireTypingLocked(typingMaxAge)

	cutoff := time.Now().Add(-presenceMaxAge)
	for userID, p := range r.presence {
		if p.LastSeen.Before(cutoff) {
			delete(r.presence, userID)
			for connID, info := range r.connections {
				if info.UserID == userID {
					_ = r.removeConnectionLocked(connID)
				}
			}
		}
	}

	// Connections whose outbound channel has gone away are reaped by
	// their own writer goroutine noticing a closed/blocked send and
	// calling RemoveConnection directly — a send-only channel can't be
	// polled for closure from here.
}
