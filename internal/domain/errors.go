package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrUnknownDoctype signals a doctype that is not registered.
	ErrUnknownDoctype = errors.New("unknown doctype")
	// ErrUnknownField signals a field that the doctype does not declare.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidSchema signals an invalid doctype schema definition.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrValidation signals a malformed query, filter or configuration value.
	ErrValidation = errors.New("validation failed")
	// ErrTransport signals a failure talking to the remote store (network, timeout, server error).
	ErrTransport = errors.New("transport error")
	// ErrNotImplemented signals an operation the backend cannot serve.
	ErrNotImplemented = errors.New("not implemented")
)

// FieldError wraps ErrValidation with the offending column.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation.Error(), e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

// NewFieldError creates a validation error for a single field.
func NewFieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
