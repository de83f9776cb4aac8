package sse

import (
	"context"
	"sync"
)

// DefaultReplayLimit is the history capacity used when none is configured.
const DefaultReplayLimit = 100

// InMemoryStore keeps replay buffers in process memory. Capacity is fixed
// per channel with FIFO eviction: a recency buffer, not an LRU, since the
// only access pattern is a forward scan from a resume point. A crash
// loses all history; clients recover via Last-Event-ID against whatever
// the new process has buffered.
type InMemoryStore struct {
	mu      sync.RWMutex
	maxSize int
	events  map[string][]Event
}

// NewInMemoryStore creates an in-memory replay store.
func NewInMemoryStore(maxSize int) *InMemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultReplayLimit
	}
	return &InMemoryStore{
		maxSize: maxSize,
		events:  make(map[string][]Event),
	}
}

// Append records one event, evicting the oldest entry beyond capacity.
func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := append(s.events[event.Channel], event)
	if len(events) > s.maxSize {
		events = events[len(events)-s.maxSize:]
	}
	s.events[event.Channel] = events
	return nil
}

// EventsSince returns the events recorded strictly after lastEventID, in
// insertion order. Empty lastEventID and unknown/evicted ids both yield an
// empty slice (see Store).
func (s *InMemoryStore) EventsSince(_ context.Context, channel, lastEventID string, limit int) ([]Event, error) {
	if lastEventID == "" {
		return []Event{}, nil
	}

	s.mu.RLock()
	events := append([]Event(nil), s.events[channel]...)
	s.mu.RUnlock()

	idx := -1
	for i, evt := range events {
		if evt.ID == lastEventID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return []Event{}, nil
	}

	out := events[idx+1:]
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
