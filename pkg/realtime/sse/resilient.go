package sse

import (
	"context"
	"errors"

	"github.com/fluentstream/fluentstream/pkg/resilience"
)

// ResilientStore guards a Store backed by a remote dependency with a
// shared circuit breaker and bounded retry. The breaker wraps the retry
// loop, so an open breaker fails fast instead of burning attempts, and a
// breaker-open rejection is never retried.
type ResilientStore struct {
	inner    Store
	name     string
	breakers *resilience.Registry
	retrier  *resilience.Retrier
}

// NewResilientStore wraps inner. name keys the shared breaker; use one
// name per dependency, not per call site.
func NewResilientStore(inner Store, name string, breakers *resilience.Registry, retrier *resilience.Retrier) (*ResilientStore, error) {
	if inner == nil {
		return nil, errors.New("inner store is required")
	}
	if breakers == nil || retrier == nil {
		return nil, errors.New("breaker registry and retrier are required")
	}
	return &ResilientStore{inner: inner, name: name, breakers: breakers, retrier: retrier}, nil
}

// Append records an event through the breaker and retry loop.
func (s *ResilientStore) Append(ctx context.Context, event Event) error {
	return s.guard(ctx, s.name+".append", func(ctx context.Context) error {
		return s.inner.Append(ctx, event)
	})
}

// EventsSince reads replay history through the breaker and retry loop.
func (s *ResilientStore) EventsSince(ctx context.Context, channel, lastEventID string, limit int) ([]Event, error) {
	var out []Event
	err := s.guard(ctx, s.name+".events_since", func(ctx context.Context) error {
		var innerErr error
		out, innerErr = s.inner.EventsSince(ctx, channel, lastEventID, limit)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying store.
func (s *ResilientStore) Close() error { return s.inner.Close() }

func (s *ResilientStore) guard(ctx context.Context, operation string, fn func(context.Context) error) error {
	return s.breakers.Do(ctx, s.name, func(ctx context.Context) error {
		return s.retrier.Do(ctx, operation, fn)
	})
}

// ResilientBus guards a Bus backed by a remote broker the same way
// ResilientStore guards a store. Publish and Subscribe go through the
// breaker and retry loop; the long-lived delivery path established by a
// successful Subscribe is the broker client's own concern.
type ResilientBus struct {
	inner    Bus
	name     string
	breakers *resilience.Registry
	retrier  *resilience.Retrier
}

// NewResilientBus wraps inner. name keys the shared breaker.
func NewResilientBus(inner Bus, name string, breakers *resilience.Registry, retrier *resilience.Retrier) (*ResilientBus, error) {
	if inner == nil {
		return nil, errors.New("inner bus is required")
	}
	if breakers == nil || retrier == nil {
		return nil, errors.New("breaker registry and retrier are required")
	}
	return &ResilientBus{inner: inner, name: name, breakers: breakers, retrier: retrier}, nil
}

// Publish fans out an event through the breaker and retry loop.
func (b *ResilientBus) Publish(ctx context.Context, event Event) error {
	return b.breakers.Do(ctx, b.name, func(ctx context.Context) error {
		return b.retrier.Do(ctx, b.name+".publish", func(ctx context.Context) error {
			return b.inner.Publish(ctx, event)
		})
	})
}

// Subscribe establishes a channel subscription through the breaker and
// retry loop.
func (b *ResilientBus) Subscribe(ctx context.Context, channel string, handler func(Event)) (Subscription, error) {
	var sub Subscription
	err := b.breakers.Do(ctx, b.name, func(ctx context.Context) error {
		return b.retrier.Do(ctx, b.name+".subscribe", func(ctx context.Context) error {
			var innerErr error
			sub, innerErr = b.inner.Subscribe(ctx, channel, handler)
			return innerErr
		})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Close closes the underlying bus.
func (b *ResilientBus) Close() error { return b.inner.Close() }
