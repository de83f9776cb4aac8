package resilience

import (
	"context"
	"sync"

	"github.com/fluentstream/fluentstream/pkg/observability/logger"
)

// BreakerMetrics receives breaker state signals. Nil disables
// instrumentation.
type BreakerMetrics interface {
	BreakerState(name string, state State)
	BreakerRejected(name string)
}

// Registry holds one circuit breaker per protected dependency, keyed by
// name. Two call sites guarding the same dependency share a breaker:
// the breaker tracks the health of the dependency, not of a caller.
//
// The registry is explicit, injectable state owned by the composition
// root, so tests can build and reset their own instead of mutating a
// hidden package-level map. Entries live for the process lifetime; one
// entry per distinct dependency is a bounded, acceptable footprint.
type Registry struct {
	defaults CircuitBreakerConfig
	log      logger.Logger
	metrics  BreakerMetrics

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a breaker registry with shared defaults.
func NewRegistry(defaults CircuitBreakerConfig, log logger.Logger) *Registry {
	defaults.normalize()
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		defaults: defaults,
		log:      log,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// WithMetrics attaches breaker metrics.
func (r *Registry) WithMetrics(metrics BreakerMetrics) *Registry {
	r.metrics = metrics
	return r
}

// Get returns the breaker for name, creating it lazily with the registry
// defaults.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb := r.breakers[name]; cb != nil {
		return cb
	}
	cb := NewCircuitBreaker(name, r.defaults, r.log)
	r.breakers[name] = cb
	return cb
}

// Execute runs fn through the named breaker.
func (r *Registry) Execute(name string, fn func() error) error {
	cb := r.Get(name)
	err := cb.Execute(fn)
	if r.metrics != nil {
		if err == ErrCircuitBreakerOpen {
			r.metrics.BreakerRejected(name)
		}
		r.metrics.BreakerState(name, cb.GetState())
	}
	return err
}

// Do runs a context-taking fn through the named breaker.
func (r *Registry) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	return r.Execute(name, func() error { return fn(ctx) })
}

// States returns a snapshot of every breaker's current state.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		out[name] = cb.GetState()
	}
	return out
}

// Reset resets the named breaker; unknown names are a no-op.
func (r *Registry) Reset(name string) {
	r.mu.Lock()
	cb := r.breakers[name]
	r.mu.Unlock()
	if cb != nil {
		cb.Reset()
	}
}

// ResetAll resets every breaker, for test teardown.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	for _, cb := range breakers {
		cb.Reset()
	}
}
