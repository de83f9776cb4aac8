package sse

import (
	"context"
	"fmt"
	"testing"
)

func recordEvents(t *testing.T, store Store, channel string, n int) []Event {
	t.Helper()
	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		evt := NewEvent(channel, "progress", []byte(fmt.Sprintf(`{"seq":%d}`, i)))
		if err := store.Append(context.Background(), evt); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		events = append(events, evt)
	}
	return events
}

func TestInMemoryStore_EventsSinceReturnsStrictSuffix(t *testing.T) {
	store := NewInMemoryStore(16)
	events := recordEvents(t, store, "lessons", 5)

	got, err := store.EventsSince(context.Background(), "lessons", events[1].ID, 0)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, evt := range got {
		if evt.ID != events[i+2].ID {
			t.Fatalf("wrong event at %d: %s", i, evt.ID)
		}
	}
}

func TestInMemoryStore_EmptyLastEventIDMeansNoReplay(t *testing.T) {
	store := NewInMemoryStore(16)
	recordEvents(t, store, "lessons", 3)

	got, err := store.EventsSince(context.Background(), "lessons", "", 0)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no replay for fresh connection, got %d events", len(got))
	}
}

func TestInMemoryStore_UnknownIDMeansNoReplay(t *testing.T) {
	store := NewInMemoryStore(16)
	recordEvents(t, store, "lessons", 3)

	got, err := store.EventsSince(context.Background(), "lessons", "never-recorded", 0)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected silent degrade to no replay, got %d events", len(got))
	}
}

func TestInMemoryStore_FIFOEviction(t *testing.T) {
	capacity := 10
	store := NewInMemoryStore(capacity)
	events := recordEvents(t, store, "lessons", capacity+5)

	// The earliest event was evicted: its resume point is lost.
	got, err := store.EventsSince(context.Background(), "lessons", events[0].ID, 0)
	if err != nil {
		t.Fatalf("events since evicted: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty replay for evicted id, got %d", len(got))
	}

	// An event still inside the window replays exactly its suffix.
	resume := events[len(events)-4]
	got, err = store.EventsSince(context.Background(), "lessons", resume.ID, 0)
	if err != nil {
		t.Fatalf("events since recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events after resume point, got %d", len(got))
	}
	for i, evt := range got {
		if evt.ID != events[len(events)-3+i].ID {
			t.Fatalf("wrong order at %d: %s", i, evt.ID)
		}
	}
}

func TestInMemoryStore_ChannelsAreIsolated(t *testing.T) {
	store := NewInMemoryStore(16)
	lessons := recordEvents(t, store, "lessons", 3)
	recordEvents(t, store, "alerts", 3)

	got, err := store.EventsSince(context.Background(), "lessons", lessons[0].ID, 0)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	for _, evt := range got {
		if evt.Channel != "lessons" {
			t.Fatalf("event from wrong channel: %s", evt.Channel)
		}
	}
}

func TestInMemoryStore_LimitKeepsMostRecent(t *testing.T) {
	store := NewInMemoryStore(32)
	events := recordEvents(t, store, "lessons", 10)

	got, err := store.EventsSince(context.Background(), "lessons", events[0].ID, 4)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}
	if got[len(got)-1].ID != events[len(events)-1].ID {
		t.Fatalf("expected newest event last, got %s", got[len(got)-1].ID)
	}
}
