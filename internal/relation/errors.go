package relation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes relationship errors.
type ErrorCode string

const (
	// ErrCodeValidation indicates a member or the parent failed validation.
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"

	// ErrCodePersistence indicates a storage call failed.
	ErrCodePersistence ErrorCode = "PERSISTENCE_FAILED"

	// ErrCodeInvalidArgument indicates malformed caller input.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeNotFound indicates an identity that resolves to no record.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// Op names the storage operation a PersistenceError came from.
type Op string

const (
	OpLoad    Op = "load"
	OpFind    Op = "find"
	OpUnlink  Op = "unlink"
	OpLink    Op = "link"
	OpDestroy Op = "destroy"
	OpCreate  Op = "create"
)

// ValidationError is returned by Save when the parent or a member is invalid.
// Nothing has been written when it is returned.
type ValidationError struct {
	Errors []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCodeValidation, strings.Join(parts, "; "))
}

// PersistenceError reports a failed storage call.
//
// When Op is OpLink the unlinks listed in Applied were already written: the
// parent save failed after partially reconciling, and the caller must roll
// back any enclosing transaction.
type PersistenceError struct {
	Relationship string
	Op           Op
	Applied      []ID
	Err          error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", ErrCodePersistence, e.Op, e.Relationship)
	if len(e.Applied) > 0 {
		msg += fmt.Sprintf(" (%d unlinks already applied)", len(e.Applied))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the storage error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Partial reports whether some writes were applied before the failure.
func (e *PersistenceError) Partial() bool {
	return len(e.Applied) > 0
}

// ArgumentError reports malformed input such as nested attributes that are
// neither a sequence nor a keyed mapping.
type ArgumentError struct {
	Relationship string
	Message      string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCodeInvalidArgument, e.Relationship, e.Message)
}

// NotFoundError reports identities that resolved to no record.
type NotFoundError struct {
	Relationship string
	IDs          []ID
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%s: %s: no record with id %s", ErrCodeNotFound, e.Relationship, strings.Join(ids, ", "))
}

// IsValidationError returns true if err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistenceError returns true if err wraps a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsArgumentError returns true if err wraps an *ArgumentError.
func IsArgumentError(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// IsNotFoundError returns true if err wraps a *NotFoundError.
func IsNotFoundError(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
