package sse

import (
	"context"
	"testing"

	"github.com/fluentstream/fluentstream/pkg/testutil"
)

func TestNewRedisStore_ValidationAndDefaults(t *testing.T) {
	if _, err := NewRedisStore(RedisStoreConfig{}); err == nil {
		t.Fatal("expected error for empty redis url")
	}

	store, err := NewRedisStore(RedisStoreConfig{URL: "redis://localhost:6379/0"})
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	defer store.Close()

	if store.prefix != "sse:history" {
		t.Fatalf("expected default prefix, got %q", store.prefix)
	}
	if store.maxSize != DefaultReplayLimit {
		t.Fatalf("expected default maxSize %d, got %d", DefaultReplayLimit, store.maxSize)
	}
}

func TestRedisStore_AppendAndEventsSince(t *testing.T) {
	url := testutil.RequireRedis(t)

	store, err := NewRedisStore(RedisStoreConfig{URL: url, Prefix: "sse:test:history", MaxSize: 8})
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	defer store.Close()

	events := recordEvents(t, store, "lessons-redis", 5)

	got, err := store.EventsSince(context.Background(), "lessons-redis", events[2].ID, 0)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].ID != events[3].ID || got[1].ID != events[4].ID {
		t.Fatalf("wrong replay order: %s, %s", got[0].ID, got[1].ID)
	}

	got, err = store.EventsSince(context.Background(), "lessons-redis", "", 0)
	if err != nil {
		t.Fatalf("events since empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no replay for empty resume point, got %d", len(got))
	}
}
