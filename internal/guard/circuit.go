package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/attaboy/racegame/internal/domain"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker keeps one circuit per outbound target (oracle, notifier,
// partner, IM). A target that keeps failing is skipped until resetTimeout
// has passed, then a single trial call is let through.
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	halfOpenMax   int
	now           func() time.Time
}

type circuit struct {
	state       CircuitState
	failures    int
	trials      int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker with configurable thresholds.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		halfOpenMax:   1,
		now:           time.Now,
	}
}

// Check returns whether a call to target may go out.
func (cb *CircuitBreaker) Check(_ context.Context, target string) domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuit(target)
	switch c.state {
	case CircuitOpen:
		since := cb.now().Sub(c.lastFailure)
		if since < cb.resetTimeout {
			return domain.GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("%s unavailable, retry in %s", target, (cb.resetTimeout - since).Round(time.Second)),
				Guard:   "circuit_breaker",
			}
		}
		c.state = CircuitHalfOpen
		c.trials = 1
		return domain.GuardResult{Allowed: true}
	case CircuitHalfOpen:
		if c.trials >= cb.halfOpenMax {
			return domain.GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("%s trial call in flight", target),
				Guard:   "circuit_breaker",
			}
		}
		c.trials++
		return domain.GuardResult{Allowed: true}
	default:
		return domain.GuardResult{Allowed: true}
	}
}

// RecordSuccess closes the circuit for target.
func (cb *CircuitBreaker) RecordSuccess(target string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuit(target)
	c.state = CircuitClosed
	c.failures = 0
	c.trials = 0
}

// RecordFailure counts a failed call. A failed trial call reopens at once.
func (cb *CircuitBreaker) RecordFailure(target string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuit(target)
	c.failures++
	c.lastFailure = cb.now()
	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
		c.trials = 0
	}
}

// State reports the current state of target's circuit.
func (cb *CircuitBreaker) State(target string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.circuit(target).state
}

func (cb *CircuitBreaker) circuit(target string) *circuit {
	c, ok := cb.circuits[target]
	if !ok {
		c = &circuit{state: CircuitClosed}
		cb.circuits[target] = c
	}
	return c
}
