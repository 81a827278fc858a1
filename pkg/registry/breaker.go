package registry

import (
	"sync"
	"time"

	"github.com/zen-systems/gauntlet/pkg/config"
)

// BreakerState is the circuit breaker state for one provider.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards one provider against repeated failures. Consecutive
// failures open the circuit; after the recovery timeout a half-open trial
// phase admits calls again, closing once enough of them succeed.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration
	successThreshold int

	state        BreakerState
	failureCount int
	successCount int
	lastFailure  time.Time
}

// NewCircuitBreaker creates a breaker from circuit config.
func NewCircuitBreaker(cfg config.CircuitConfig) *CircuitBreaker {
	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	recovery := time.Duration(cfg.RecoveryTimeoutMs) * time.Millisecond
	if recovery <= 0 {
		recovery = 30 * time.Second
	}
	successThreshold := cfg.SuccessThreshold
	if successThreshold <= 0 {
		successThreshold = 2
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recovery,
		successThreshold: successThreshold,
		state:            BreakerClosed,
	}
}

// Allow reports whether a call may proceed. An open circuit transitions to
// half-open once the recovery timeout has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.lastFailure) >= b.recoveryTimeout {
			b.state = BreakerHalfOpen
			b.successCount = 0
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess feeds a successful call outcome into the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = BreakerClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case BreakerClosed:
		b.failureCount = 0
	}
}

// RecordFailure feeds a failed call outcome into the breaker.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = time.Now()

	switch b.state {
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.successCount = 0
	case BreakerClosed:
		if b.failureCount >= b.failureThreshold {
			b.state = BreakerOpen
		}
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
