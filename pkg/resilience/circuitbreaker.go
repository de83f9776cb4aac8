package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fluentstream/fluentstream/pkg/observability/logger"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed lets calls through; the dependency is considered healthy.
	StateClosed State = iota
	// StateOpen rejects calls immediately without invoking the dependency.
	StateOpen
	// StateHalfOpen lets a trial call through to probe recovery.
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitBreakerOpen signals "do not call, the dependency is unhealthy".
// Callers must treat it differently from a functional failure: fail fast
// or degrade, never retry immediately against the same breaker.
var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures one breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// breaker from the closed state.
	FailureThreshold int
	// RecoveryTimeout is how long an open breaker waits before admitting
	// a trial call.
	RecoveryTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns breaker defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

func (c *CircuitBreakerConfig) normalize() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = DefaultCircuitBreakerConfig().RecoveryTimeout
	}
}

// CircuitBreaker tracks the health of one dependency. It lives for the
// process lifetime; state is per process, with no cross-node coordination.
//
// Half-open admission is re-evaluated per call rather than gated by a
// single permit, so concurrent callers arriving while half-open can each
// get a trial call before any outcome lands. Known race, kept to match
// the per-call state check this design is specified on.
type CircuitBreaker struct {
	name  string
	cfg   CircuitBreakerConfig
	log   logger.Logger
	clock func() time.Time

	mu           sync.RWMutex
	state        State
	failures     int
	lastFailTime time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, log logger.Logger) *CircuitBreaker {
	cfg.normalize()
	if log == nil {
		log = logger.NewNop()
	}
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		log:   log,
		clock: time.Now,
		state: StateClosed,
	}
}

// Execute runs fn when the breaker admits the call, recording the outcome.
// An open breaker returns ErrCircuitBreakerOpen without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.admit() {
		return ErrCircuitBreakerOpen
	}

	if err := fn(); err != nil {
		cb.recordFailure(err)
		return err
	}

	cb.recordSuccess()
	return nil
}

// Do is Execute with a context-taking function.
func (cb *CircuitBreaker) Do(ctx context.Context, fn func(context.Context) error) error {
	return cb.Execute(func() error { return fn(ctx) })
}

// admit decides whether a call may proceed, moving an expired open
// breaker to half-open on the way.
func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.clock().Sub(cb.lastFailTime) > cb.cfg.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailTime = cb.clock()

	if cb.state == StateHalfOpen {
		// Trial call failed: reopen and restart the recovery window.
		cb.failures = 0
		cb.transition(StateOpen)
		return
	}

	cb.failures++
	if cb.failures >= cb.cfg.FailureThreshold {
		cb.log.Warn("circuit breaker threshold reached",
			"breaker", cb.name,
			"failures", cb.failures,
			"error", err,
		)
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.failures = 0
		cb.transition(StateClosed)
	case StateClosed:
		cb.failures = 0
	}
}

// transition switches state and logs it. Caller holds cb.mu.
func (cb *CircuitBreaker) transition(next State) {
	if cb.state == next {
		return
	}
	cb.log.Info("circuit breaker state change",
		"breaker", cb.name,
		"from", cb.state.String(),
		"to", next.String(),
	)
	cb.state = next
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetFailures returns the current consecutive-failure count.
func (cb *CircuitBreaker) GetFailures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset forces the breaker back to closed with a zero failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.transition(StateClosed)
}
