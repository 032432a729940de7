package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"wrapped unauthorized", fmt.Errorf("delete: %w", ErrUnauthorized), "unauthorized"},
		{"not found", ErrNotFound, "not_found"},
		{"conflict", fmt.Errorf("tag %q: %w", "exam", ErrConflict), "conflict"},
		{"integrity", ErrIntegrityViolation, "integrity_violation"},
		{"partial failure", &PartialFailure{ResourceID: 7, Cause: errors.New("timeout")}, "partial_failure"},
		{"transient", fmt.Errorf("send: %w", ErrUpstreamTransient), "upstream_transient"},
		{"invalid", ErrInvalidInput, "invalid_input"},
		{"other", errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Kind(tt.err); got != tt.want {
				t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestPartialFailure_Unwrap(t *testing.T) {
	cause := errors.New("telegram: 502")
	var err error = &PartialFailure{ResourceID: 42, Cause: cause}

	if !errors.Is(err, ErrUpstreamTransient) {
		t.Error("expected PartialFailure to match ErrUpstreamTransient")
	}
	if !errors.Is(err, cause) {
		t.Error("expected PartialFailure to match its cause")
	}

	var pf *PartialFailure
	if !errors.As(err, &pf) || pf.ResourceID != 42 {
		t.Errorf("expected ResourceID 42, got %+v", pf)
	}
}
