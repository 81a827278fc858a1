package registry

import (
	"testing"
	"time"

	"github.com/zen-systems/gauntlet/pkg/config"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitConfig{
		FailureThreshold:  3,
		RecoveryTimeoutMs: 30000,
		SuccessThreshold:  2,
	})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed below threshold, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("closed breaker should allow calls")
	}

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open at threshold, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatal("open breaker should reject calls")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitConfig{
		FailureThreshold:  3,
		RecoveryTimeoutMs: 30000,
		SuccessThreshold:  2,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	if cb.State() != BreakerClosed {
		t.Fatalf("interleaved successes should keep breaker closed, got %s", cb.State())
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitConfig{
		FailureThreshold:  1,
		RecoveryTimeoutMs: 10,
		SuccessThreshold:  2,
	})

	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatal("breaker should stay open before recovery timeout")
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should allow a probe after recovery timeout")
	}
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open after probe, got %s", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("one success should not close the breaker, got %s", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != BreakerClosed {
		t.Fatalf("expected closed after success threshold, got %s", cb.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitConfig{
		FailureThreshold:  1,
		RecoveryTimeoutMs: 10,
		SuccessThreshold:  2,
	})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected probe to be allowed")
	}
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("half-open failure should reopen, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatal("reopened breaker should reject calls")
	}
}

func TestBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(config.CircuitConfig{})

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("default threshold is 5, got %s after 4 failures", cb.State())
	}
	cb.RecordFailure()
	if cb.State() != BreakerOpen {
		t.Fatalf("expected open after 5 failures, got %s", cb.State())
	}
}
