// Package errs defines the error kinds shared by the catalog, role and
// deletion code. Callers match them with errors.Is; stores and services
// wrap them with context via fmt.Errorf("...: %w", kind).
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the role check failed. It is shown to the user
	// as a denial and never retried.
	ErrUnauthorized = errors.New("not allowed")

	// ErrNotFound covers absent or tombstoned resources, categories and tags.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers uniqueness violations (category/tag names) and
	// duplicate bootstrap consumption.
	ErrConflict = errors.New("conflict")

	// ErrUpstreamTransient means a transport call failed. The affected id is
	// kept for reconciliation.
	ErrUpstreamTransient = errors.New("upstream failure")

	// ErrIntegrityViolation is returned when a mutation would break a
	// referential invariant, e.g. deleting a referenced Category.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrInvalidInput is returned for empty or oversized names and descriptions.
	ErrInvalidInput = errors.New("invalid input")
)

// PartialFailure reports a deletion that tombstoned the catalog row but
// could not remove the external artifact. ResourceID is the row left for
// the reconciliation sweep.
type PartialFailure struct {
	ResourceID int64
	Cause      error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("resource %d tombstoned, external delete pending: %v", e.ResourceID, e.Cause)
}

// Unwrap exposes both the transient kind and the underlying transport error.
func (e *PartialFailure) Unwrap() []error {
	return []error{ErrUpstreamTransient, e.Cause}
}

// Kind returns the short code for err used in metrics labels and audit
// details. Unknown errors map to "internal".
func Kind(err error) string {
	var pf *PartialFailure
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &pf):
		return "partial_failure"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity_violation"
	case errors.Is(err, ErrUpstreamTransient):
		return "upstream_transient"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "internal"
	}
}
