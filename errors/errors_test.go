package errors

import (
	"testing"
)

func TestSentinelIdentity(t *testing.T) {
	wrapped := Wrap(ErrConflict, "transition pending -> completed")

	if !IsConflict(wrapped) {
		t.Error("wrapped conflict error lost its identity")
	}
	if IsNotFound(wrapped) {
		t.Error("conflict error must not match ErrNotFound")
	}
}

func TestNewNotFoundCarriesMessage(t *testing.T) {
	err := NewNotFound("job %s", "job-123")

	if !IsNotFound(err) {
		t.Fatal("NewNotFound must match ErrNotFound")
	}
	if got := err.Error(); got == "" {
		t.Error("expected non-empty message")
	}
}

func TestInvalidDependencyDistinctFromInvalidRequest(t *testing.T) {
	err := NewInvalidDependency("cycle through %s", "job-a")

	if !IsInvalidDependency(err) {
		t.Fatal("NewInvalidDependency must match ErrInvalidDependency")
	}
	if Is(err, ErrInvalidRequest) {
		t.Error("dependency errors must not alias request errors")
	}
}

func TestNilSafety(t *testing.T) {
	if IsNotFound(nil) || IsConflict(nil) || IsInvalidDependency(nil) {
		t.Error("nil error must not match any sentinel")
	}
}
