package bk5000

import (
	"testing"
	"time"
)

func TestCircuitOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 3, OpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if !cb.Allow() {
			t.Fatalf("circuit should stay closed after %d failures", i+1)
		}
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Errorf("expected open state, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("open circuit should refuse attempts")
	}
}

func TestCircuitHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, OpenTimeout: time.Millisecond})

	cb.RecordFailure()
	if cb.Allow() {
		t.Fatal("circuit should be open immediately after failure")
	}

	time.Sleep(5 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("expected a probe to be allowed after the open timeout")
	}
	if cb.State() != CircuitHalfOpen {
		t.Errorf("expected half-open state, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("only one probe should be allowed while half-open")
	}

	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Errorf("success should close the circuit, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Error("closed circuit should allow attempts")
	}
}

func TestCircuitHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, OpenTimeout: time.Millisecond})

	cb.RecordFailure()
	time.Sleep(5 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("expected a probe after the open timeout")
	}

	cb.RecordFailure()
	if cb.State() != CircuitOpen {
		t.Errorf("probe failure should reopen the circuit, got %s", cb.State())
	}
}

func TestCircuitReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, OpenTimeout: time.Hour})

	cb.RecordFailure()
	cb.Reset()

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after reset, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Error("reset circuit should allow attempts")
	}
}
