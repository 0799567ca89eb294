package registry

import "errors"

// ErrNotFound is returned by RemoveConnection when the connection id
// is already gone (an explicit double-remove by a caller, as opposed
// to the background sweeper's tolerant cleanup).
var ErrNotFound = errors.New("registry: connection not found")

// ErrNoConnections is an advisory (not a failure) result from
// BroadcastToRoom meaning the room currently has zero subscribers.
var ErrNoConnections = errors.New("registry: room has no subscribers")

// PartialFailureError reports that a broadcast reached some but not
// all subscribers; it is advisory, since sends are best-effort.
type PartialFailureError struct {
	FailedCount int
}

func (e *PartialFailureError) Error() string {
	return "registry: broadcast failed for some subscribers"
}
