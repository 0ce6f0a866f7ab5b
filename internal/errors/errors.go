// Package errors holds the error definitions shared by the write path
// (window extraction and chunked persistence) and the read path (range
// queries over the record store).
//
// Error taxonomy:
//   - precondition violations (unsorted input, missing timestamp field)
//   - index-out-of-range on row lookups, recoverable, maps to "not found"
//   - resource exhaustion, fatal for the current processing unit
//   - I/O failures on the underlying store, fatal for the current unit
//
// Windows failing the vessel-continuity or finiteness checks are NOT errors;
// they are encoded through the sentinel label.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Lookup errors
	ErrNotFound        = errors.New("not found")
	ErrIndexOutOfRange = errors.New("index out of range")

	// Precondition errors
	ErrUnsorted        = errors.New("events not sorted by (vessel, timestamp)")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrInvalidPath     = errors.New("invalid path")

	// Resource errors
	ErrResourceExhausted = errors.New("batch exceeds memory budget")

	// Store errors
	ErrAlreadyExists  = errors.New("already exists")
	ErrStoreCorrupt   = errors.New("store corrupt")
	ErrShapeMismatch  = errors.New("store shape mismatch")
	ErrStoreImmutable = errors.New("store is complete and immutable")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// ============================================================================
// Helper functions for error checking
// ============================================================================

// IsNotFound returns true if err is a not-found error. An out-of-range row
// index counts as not found for the serving layer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrIndexOutOfRange)
}

// IsValidation returns true if err is caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidPath) ||
		errors.Is(err, ErrMissingField)
}

// IsPrecondition returns true if err reports a violated input precondition.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrUnsorted) ||
		errors.Is(err, ErrMissingField)
}

// IsFatalForUnit returns true if the error aborts the current processing unit.
func IsFatalForUnit(err error) bool {
	if err == nil {
		return false
	}
	return !IsNotFound(err)
}

// ============================================================================
// Error to HTTP status mapping
// ============================================================================

// HTTPStatus maps an error to the status code the serving layer responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrResourceExhausted):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewIndexOutOfRange creates an index-out-of-range error with context.
func NewIndexOutOfRange(index, total int64) error {
	return fmt.Errorf("row %d of %d: %w", index, total, ErrIndexOutOfRange)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidArgument creates an invalid argument error.
func NewInvalidArgument(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidArgument)
}

// NewValidation creates a configuration validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}
