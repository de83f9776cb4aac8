package sse

import "context"

// Store keeps a short replay history for Last-Event-ID recovery.
//
// EventsSince answers the one query reconnecting clients need: everything
// recorded strictly after lastEventID, in original order. Two cases return
// an empty slice: an empty lastEventID (fresh connection, no resume
// requested) and an id no longer in the buffer (resume point evicted).
// The lost-resume case degrades silently; the client continues live.
type Store interface {
	Append(ctx context.Context, event Event) error
	EventsSince(ctx context.Context, channel, lastEventID string, limit int) ([]Event, error)
	Close() error
}
