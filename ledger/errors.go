/*
errors.go - Centralized error types for the commission ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error returned by the ledger matches exactly one sentinel below
  via errors.Is, so adapters (HTTP, CLI) can map them without string checks.

ERROR CATEGORIES:
  1. Validation errors - Malformed input, caller should re-prompt
  2. State errors - Operation forbidden by the period's status
  3. Not found errors - Referenced entry/period/seller does not exist
  4. Persistence errors - Backing store failed; never retried by the ledger

USAGE:
  if errors.Is(err, ledger.ErrInvalidStateTransition) {
      // show rejection to the operator
  }

  var verr *ledger.ValidationError
  if errors.As(err, &verr) {
      fmt.Println("bad field:", verr.Field)
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidStateTransition is matched by every *StateTransitionError.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrNotFound is matched by every *NotFoundError. Stores return it
	// directly when a lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrPersistence is matched by every *PersistenceError.
	ErrPersistence = errors.New("persistence failure")

	// ErrDuplicateIdempotencyKey is returned when a create call reuses a key.
	// Expected on client retries; nothing is written.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateTransitionError reports an operation the period's status forbids.
type StateTransitionError struct {
	Key    Key
	From   Status
	Action string
	Reason string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s period %s (status %s): %s", e.Action, e.Key, e.From, e.Reason)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// NotFoundError names the missing resource.
type NotFoundError struct {
	Resource string // "entry", "period", "seller"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PersistenceError wraps a backend failure with the operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err as a *PersistenceError unless it is nil or already
// a ledger error that adapters know how to map.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsClientError returns true if the error is due to invalid client input
// or a forbidden operation.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
